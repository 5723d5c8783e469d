// Package api provides the operational gRPC surface for the connector: a
// narrow GetAccount query plus the standard grpc/health service. There is no
// protoc toolchain available in this environment, so the service descriptor
// and handler below are hand-written rather than code-generated.
package api

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/warrant1/chain-xrpl-ilp/internal/account"
)

// GetAccountRequest asks for a single mini-account's current state.
type GetAccountRequest struct {
	AccountId string `json:"accountId"`
}

// GetAccountResponse mirrors account.Snapshot over the wire.
type GetAccountResponse struct {
	AccountId           string `json:"accountId"`
	State               string `json:"state"`
	IncomingClaimAmount uint64 `json:"incomingClaimAmount"`
	OutgoingBalance     uint64 `json:"outgoingBalance"`
	OwedBalance         uint64 `json:"owedBalance"`
	Blocked             bool   `json:"blocked"`
	BlockReason         string `json:"blockReason,omitempty"`
}

// AccountLookup is the narrow surface Connector needs from the orchestrator.
type AccountLookup interface {
	Snapshot(accountID string) (account.Snapshot, bool)
}

// ConnectorServer is the interface RegisterConnectorServer expects an
// implementation to satisfy, the hand-rolled equivalent of what
// protoc-gen-go-grpc would generate from a connector.proto.
type ConnectorServer interface {
	GetAccount(ctx context.Context, req *GetAccountRequest) (*GetAccountResponse, error)
}

// Connector implements ConnectorServer over an Orchestrator's account registry.
type Connector struct {
	lookup AccountLookup
	logger *slog.Logger
}

// NewConnector builds a Connector API server.
func NewConnector(logger *slog.Logger, lookup AccountLookup) *Connector {
	return &Connector{lookup: lookup, logger: logger.With("component", "api.Connector")}
}

// GetAccount reports a mini-account's lifecycle state and balances.
func (c *Connector) GetAccount(ctx context.Context, req *GetAccountRequest) (*GetAccountResponse, error) {
	l := c.logger.With("method", "GetAccount", "accountId", req.AccountId)
	l.Debug("start")

	snap, ok := c.lookup.Snapshot(req.AccountId)
	if !ok {
		l.Warn("account not known")
		return nil, status.Errorf(codes.NotFound, "account %s not known", req.AccountId)
	}

	l.Debug("account found", "state", snap.State)
	return &GetAccountResponse{
		AccountId:           snap.AccountID,
		State:               snap.State,
		IncomingClaimAmount: snap.IncomingClaim,
		OutgoingBalance:     snap.OutgoingBalance,
		OwedBalance:         snap.OwedBalance,
		Blocked:             snap.Blocked,
		BlockReason:         snap.BlockReason,
	}, nil
}

var connectorServiceDesc = grpc.ServiceDesc{
	ServiceName: "ilp.connector.v1.Connector",
	HandlerType: (*ConnectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAccount", Handler: connectorGetAccountHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "connector.proto",
}

func connectorGetAccountHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAccountRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConnectorServer).GetAccount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ilp.connector.v1.Connector/GetAccount"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConnectorServer).GetAccount(ctx, req.(*GetAccountRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterConnectorServer registers srv on s, the hand-written equivalent of
// a protoc-gen-go-grpc RegisterXxxServer function.
func RegisterConnectorServer(s *grpc.Server, srv ConnectorServer) {
	s.RegisterService(&connectorServiceDesc, srv)
}
