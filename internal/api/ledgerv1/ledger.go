// Package ledgerv1 defines the omikuji.v1.Ledger gRPC service: messages,
// service descriptor and client. Messages travel as JSON (see Codec).
package ledgerv1

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "omikuji.v1.Ledger"

// Full method names.
const (
	RecordConsentMethod = "/" + ServiceName + "/RecordConsent"
	RevokeConsentMethod = "/" + ServiceName + "/RevokeConsent"
	RecordDrawMethod    = "/" + ServiceName + "/RecordDraw"
	ListDrawsMethod     = "/" + ServiceName + "/ListDraws"
)

type RecordConsentRequest struct {
	Scopes []string `json:"scopes,omitempty"`
}

type RecordConsentResponse struct {
	ConsentID string    `json:"consent_id"`
	GrantedAt time.Time `json:"granted_at"`
}

type RevokeConsentRequest struct{}

type RevokeConsentResponse struct {
	// Revoked is false when no consent was active.
	Revoked bool `json:"revoked"`
}

// Draw is a recorded fortune.
type Draw struct {
	ID      string    `json:"id"`
	Deck    string    `json:"deck"`
	Title   string    `json:"title"`
	Message string    `json:"message,omitempty"`
	DrawnAt time.Time `json:"drawn_at"`
}

type RecordDrawRequest struct {
	Draw Draw `json:"draw"`
}

type RecordDrawResponse struct {
	Draw Draw `json:"draw"`
}

type ListDrawsRequest struct {
	// Before pages backwards; nil lists from the newest draw.
	Before *time.Time `json:"before,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

type ListDrawsResponse struct {
	Draws []Draw `json:"draws"`
}

// LedgerServer is the server API of omikuji.v1.Ledger.
type LedgerServer interface {
	RecordConsent(context.Context, *RecordConsentRequest) (*RecordConsentResponse, error)
	RevokeConsent(context.Context, *RevokeConsentRequest) (*RevokeConsentResponse, error)
	RecordDraw(context.Context, *RecordDrawRequest) (*RecordDrawResponse, error)
	ListDraws(context.Context, *ListDrawsRequest) (*ListDrawsResponse, error)
}

// unary adapts a typed server method to a grpc.MethodHandler.
func unary[Req, Resp any](method string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes omikuji.v1.Ledger for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordConsent", Handler: unary(RecordConsentMethod, LedgerServer.RecordConsent)},
		{MethodName: "RevokeConsent", Handler: unary(RevokeConsentMethod, LedgerServer.RevokeConsent)},
		{MethodName: "RecordDraw", Handler: unary(RecordDrawMethod, LedgerServer.RecordDraw)},
		{MethodName: "ListDraws", Handler: unary(ListDrawsMethod, LedgerServer.ListDraws)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "omikuji/v1/ledger",
}

// RegisterLedgerServer registers srv on s.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// LedgerClient calls omikuji.v1.Ledger over a client connection.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerClient wraps cc.
func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) RecordConsent(ctx context.Context, in *RecordConsentRequest, opts ...grpc.CallOption) (*RecordConsentResponse, error) {
	return invoke[RecordConsentResponse](ctx, c.cc, RecordConsentMethod, in, opts)
}

func (c *LedgerClient) RevokeConsent(ctx context.Context, in *RevokeConsentRequest, opts ...grpc.CallOption) (*RevokeConsentResponse, error) {
	return invoke[RevokeConsentResponse](ctx, c.cc, RevokeConsentMethod, in, opts)
}

func (c *LedgerClient) RecordDraw(ctx context.Context, in *RecordDrawRequest, opts ...grpc.CallOption) (*RecordDrawResponse, error) {
	return invoke[RecordDrawResponse](ctx, c.cc, RecordDrawMethod, in, opts)
}

func (c *LedgerClient) ListDraws(ctx context.Context, in *ListDrawsRequest, opts ...grpc.CallOption) (*ListDrawsResponse, error) {
	return invoke[ListDrawsResponse](ctx, c.cc, ListDrawsMethod, in, opts)
}
