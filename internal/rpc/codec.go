package rpc

import (
	"fmt"
	"math"
	"strconv"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactFloat is the largest integer a JSON number carries without loss.
const maxExactFloat = 1 << 53

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func principalField(req *structpb.Struct, key string) (ledger.Principal, error) {
	p, err := ledger.ParsePrincipal(stringField(req, key))
	if err != nil {
		return "", toStatus(fmt.Errorf("%s: %w", key, err))
	}
	return p, nil
}

// uintField reads a uint64 sent as a decimal string or a whole number.
func uintField(req *structpb.Struct, key string, required bool) (uint64, error) {
	v, ok := req.GetFields()[key]
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); !ok || isNull || v.GetKind() == nil {
		if required {
			return 0, invalidArg(key + " is required")
		}
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, invalidArg(fmt.Sprintf("%s: %q is not an unsigned integer", key, k.StringValue))
		}
		return n, nil
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f >= maxExactFloat {
			return 0, invalidArg(fmt.Sprintf("%s: %v must be a whole number below 2^53; send larger values as strings", key, f))
		}
		return uint64(f), nil
	}
	return 0, invalidArg(key + " must be a string or number")
}

func u64(n uint64) string { return strconv.FormatUint(n, 10) }

func entryMap(e ledger.Entry) map[string]any {
	return map[string]any{
		"index":             e.Index,
		"from":              e.From.String(),
		"to":                e.To.String(),
		"amount":            u64(e.Amount),
		"post_balance_from": u64(e.PostBalanceFrom),
		"post_balance_to":   u64(e.PostBalanceTo),
		"cycles_burnt":      u64(e.CyclesBurnt),
		"reason":            e.Reason,
	}
}

func entryStruct(e ledger.Entry) (*structpb.Struct, error) {
	return structpb.NewStruct(entryMap(e))
}

func metadataStruct(m ledger.Metadata) (*structpb.Struct, error) {
	minters := make([]any, 0, len(m.Minters))
	for _, p := range m.Minters {
		minters = append(minters, p.String())
	}
	return structpb.NewStruct(map[string]any{
		"initialized":  m.Initialized,
		"owner":        m.Owner.String(),
		"name":         m.Name,
		"symbol":       m.Symbol,
		"decimals":     int(m.Decimals),
		"total_supply": u64(m.TotalSupply),
		"minters":      minters,
		"burnt_cycles": u64(m.BurntCycles),
		"accounts":     m.Accounts,
		"history_len":  m.HistoryLen,
		"version":      u64(m.Version),
	})
}
