// Package rpc serves the token ledger over gRPC as tokenledger.v1.Ledger.
//
// Messages are google.protobuf.Struct values so no generated code is needed.
// Amounts and other uint64 quantities travel as decimal strings; requests
// also accept whole JSON numbers below 2^53.
package rpc

import (
	"context"
	"fmt"
	"math"

	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "tokenledger.v1.Ledger"

// Server implements tokenledger.v1.Ledger on top of a TokenService.
type Server struct {
	svc    *service.TokenService
	tokens *identity.CallerTokenIssuer
	logger *zap.Logger
}

// NewServer creates a Server. tokens verifies the bearer token of mutating calls.
func NewServer(svc *service.TokenService, tokens *identity.CallerTokenIssuer, logger *zap.Logger) *Server {
	return &Server{svc: svc, tokens: tokens, logger: logger}
}

// Register adds the Ledger service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) isLedgerServer() {}

// ledgerServer is the ServiceDesc handler type.
type ledgerServer interface {
	isLedgerServer()
}

type methodFunc func(s *Server, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// methods lists every unary method; mutating ones require a caller.
var methods = []struct {
	name     string
	mutating bool
	fn       methodFunc
}{
	{"Initialize", true, (*Server).initialize},
	{"AddMinter", true, (*Server).addMinter},
	{"Mint", true, (*Server).mint},
	{"Approve", true, (*Server).approve},
	{"Transfer", true, (*Server).transfer},
	{"BurnCycles", true, (*Server).burnCycles},
	{"BalanceOf", false, (*Server).balanceOf},
	{"Allowance", false, (*Server).allowance},
	{"TotalSupply", false, (*Server).totalSupply},
	{"Symbol", false, (*Server).symbol},
	{"Name", false, (*Server).name},
	{"Decimals", false, (*Server).decimals},
	{"BurntCycles", false, (*Server).burntCycles},
	{"TransactionHistory", false, (*Server).transactionHistory},
	{"Metadata", false, (*Server).metadata},
}

var serviceDesc = buildServiceDesc()

func buildServiceDesc() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*ledgerServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "tokenledger/v1/ledger.proto",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, unaryMethod(m.name, m.fn))
	}
	return desc
}

func unaryMethod(name string, fn methodFunc) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// FullMethod returns the gRPC method path for name, e.g. "/tokenledger.v1.Ledger/Transfer".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func mutatingMethods() map[string]bool {
	out := make(map[string]bool)
	for _, m := range methods {
		if m.mutating {
			out[FullMethod(m.name)] = true
		}
	}
	return out
}

// ── Handlers ──────────────────────────────────────────────────────────────

func (s *Server) initialize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	supply, err := uintField(req, "total_supply", false)
	if err != nil {
		return nil, err
	}
	decimals, err := uintField(req, "decimals", false)
	if err != nil {
		return nil, err
	}
	if decimals > 255 {
		return nil, invalidArg("decimals must fit in 8 bits")
	}
	args := ledger.InitArgs{
		Symbol:      stringField(req, "symbol"),
		Name:        stringField(req, "name"),
		TotalSupply: supply,
		Decimals:    uint8(decimals),
	}
	if err := s.svc.Initialize(ctx, callerFrom(ctx), args); err != nil {
		return nil, toStatus(err)
	}
	return metadataStruct(s.svc.Metadata(ctx))
}

func (s *Server) addMinter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	minter, err := principalField(req, "minter")
	if err != nil {
		return nil, err
	}
	if err := s.svc.AddMinter(ctx, callerFrom(ctx), minter); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"minter": minter.String()})
}

func (s *Server) mint(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	to, err := principalField(req, "to")
	if err != nil {
		return nil, err
	}
	amount, err := uintField(req, "amount", true)
	if err != nil {
		return nil, err
	}
	entry, err := s.svc.Mint(ctx, callerFrom(ctx), to, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return entryStruct(entry)
}

func (s *Server) approve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	spender, err := principalField(req, "spender")
	if err != nil {
		return nil, err
	}
	amount, err := uintField(req, "amount", true)
	if err != nil {
		return nil, err
	}
	caller := callerFrom(ctx)
	if err := s.svc.Approve(ctx, caller, spender, amount); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"owner":     caller.String(),
		"spender":   spender.String(),
		"allowance": u64(amount),
	})
}

func (s *Server) transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	to, err := principalField(req, "to")
	if err != nil {
		return nil, err
	}
	amount, err := uintField(req, "amount", true)
	if err != nil {
		return nil, err
	}
	entry, err := s.svc.Transfer(ctx, callerFrom(ctx), to, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return entryStruct(entry)
}

func (s *Server) burnCycles(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	amount, err := uintField(req, "amount", true)
	if err != nil {
		return nil, err
	}
	total := s.svc.BurnCycles(ctx, callerFrom(ctx), amount)
	return structpb.NewStruct(map[string]any{"burnt_cycles": u64(total)})
}

func (s *Server) balanceOf(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalField(req, "principal")
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"principal": p.String(),
		"balance":   u64(s.svc.BalanceOf(ctx, p)),
	})
}

func (s *Server) allowance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := principalField(req, "owner")
	if err != nil {
		return nil, err
	}
	spender, err := principalField(req, "spender")
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"owner":     owner.String(),
		"spender":   spender.String(),
		"allowance": u64(s.svc.Allowance(ctx, owner, spender)),
	})
}

func (s *Server) totalSupply(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"total_supply": u64(s.svc.TotalSupply(ctx))})
}

func (s *Server) symbol(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"symbol": s.svc.Symbol(ctx)})
}

func (s *Server) name(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"name": s.svc.Name(ctx)})
}

func (s *Server) decimals(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"decimals": int(s.svc.Decimals(ctx))})
}

func (s *Server) burntCycles(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"burnt_cycles": u64(s.svc.BurntCycles(ctx))})
}

func (s *Server) transactionHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	offset, err := uintField(req, "offset", false)
	if err != nil {
		return nil, err
	}
	limit, err := uintField(req, "limit", false)
	if err != nil {
		return nil, err
	}
	if offset > math.MaxInt32 || limit > math.MaxInt32 {
		return nil, invalidArg(fmt.Sprintf("offset and limit must not exceed %d", math.MaxInt32))
	}
	entries, total := s.svc.HistoryPage(ctx, int(offset), int(limit))

	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, entryMap(e))
	}
	return structpb.NewStruct(map[string]any{
		"entries": list,
		"total":   total,
	})
}

func (s *Server) metadata(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return metadataStruct(s.svc.Metadata(ctx))
}
