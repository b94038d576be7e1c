package fusionrpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/escrow"
	"github.com/fusionbridge/swapd/fusionerrs"
	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/clock"
	"github.com/fusionbridge/swapd/pkg/safemath"
	"google.golang.org/grpc"
)

var log = fusionlog.NewSubLogger("FRPC")

// Orchestrator is notified once a swap proposal has been accepted and
// recorded, so the daemon can spin up the per-swap driver that feeds
// adapter events into the coordinator. Separate from coordinator.Store so
// this package never imports the adapter/event-pipeline wiring directly.
type Orchestrator interface {
	SwapProposed(ctx context.Context, swapKey string)
}

// Server implements the swapd control-plane RPC surface.
type Server struct {
	mtx      sync.Mutex
	records  *coordinator.Store
	escrows  *escrow.Store
	draining bool
	clk      clock.Clock
	orch     Orchestrator

	alertSubs map[chan Alert]struct{}
}

// NewServer returns a Server backed by the given coordinator.Store and
// escrow.Store.
func NewServer(records *coordinator.Store, escrows *escrow.Store, clk clock.Clock) *Server {
	return &Server{
		records:   records,
		escrows:   escrows,
		clk:       clk,
		alertSubs: make(map[chan Alert]struct{}),
	}
}

// SetOrchestrator wires the hook ProposeSwap notifies once a swap has been
// recorded. Optional: a Server with no orchestrator just records proposals
// without driving them.
func (s *Server) SetOrchestrator(orch Orchestrator) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.orch = orch
}

// ProposeSwap registers a new swap with the coordinator.
func (s *Server) ProposeSwap(ctx context.Context, req *ProposeSwapRequest) (*ProposeSwapResponse, error) {
	s.mtx.Lock()
	draining := s.draining
	s.mtx.Unlock()

	if draining {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: server is draining, rejecting new proposals"))
	}

	if req.SwapKey == "" {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: swap_key is required"))
	}

	if _, exists := s.records.Get(req.SwapKey); exists {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: swap %s already proposed", req.SwapKey))
	}

	rawHash, err := hex.DecodeString(req.SecretHashHex)
	if err != nil {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: invalid secret_hash_hex: %w", err))
	}
	if _, err := htlc.HashFromBytes(rawHash); err != nil {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: invalid secret_hash_hex: %w", err))
	}

	now := uint64(s.clk.Now().UnixNano())

	cancelFrom, err := safemath.AddTimestamp(now, req.CancelPeriodSecs)
	if err != nil {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: cancel_period_secs overflow: %w", err))
	}

	marginNanos, err := safemath.MulUint64(req.SafetyMarginSecs, 1_000_000_000)
	if err != nil {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: safety_margin_secs overflow: %w", err))
	}

	if req.FillDeadline < marginNanos || cancelFrom >= req.FillDeadline-marginNanos {
		return nil, fusionerrs.Permanent(fmt.Errorf(
			"fusionrpc: chain-B cancel_from (%d) does not precede chain-A fill_deadline (%d) by the required safety margin (%ds)",
			cancelFrom, req.FillDeadline, req.SafetyMarginSecs))
	}

	s.records.Propose(req.SwapKey, coordinator.ProposeParams{
		OrderRef:            req.SwapKey,
		ExpectedAmount:      req.Principal,
		FillDeadline:        req.FillDeadline,
		CounterpartyAddress: req.Beneficiary,
	}, s.clk)

	log.Infof("swap proposed: %s resolver=%s beneficiary=%s", req.SwapKey, req.Resolver, req.Beneficiary)

	s.mtx.Lock()
	orch := s.orch
	s.mtx.Unlock()

	if orch != nil {
		orch.SwapProposed(ctx, req.SwapKey)
	}

	return &ProposeSwapResponse{SwapKey: req.SwapKey}, nil
}

// GetSwap returns the coordinator's current view of a swap.
func (s *Server) GetSwap(ctx context.Context, req *GetSwapRequest) (*GetSwapResponse, error) {
	rec, ok := s.records.Get(req.SwapKey)
	if !ok {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: unknown swap %s", req.SwapKey))
	}

	resp := recordToGetSwapResponse(rec)
	return &resp, nil
}

// AbortSwap requests the coordinator abort a swap that hasn't reached a
// point of no return.
func (s *Server) AbortSwap(ctx context.Context, req *AbortSwapRequest) (*AbortSwapResponse, error) {
	if _, ok := s.records.Get(req.SwapKey); !ok {
		return nil, fusionerrs.Permanent(fmt.Errorf("fusionrpc: unknown swap %s", req.SwapKey))
	}

	if _, err := s.records.Advance(req.SwapKey, coordinator.Event{Kind: coordinator.EventAbortRequested}, s.clk); err != nil {
		return nil, err
	}

	return &AbortSwapResponse{}, nil
}

// Drain stops the server from accepting new proposals and reports how many
// swaps remain in flight.
func (s *Server) Drain(ctx context.Context, req *DrainRequest) (*DrainResponse, error) {
	s.mtx.Lock()
	s.draining = true
	s.mtx.Unlock()

	inFlight := 0
	for _, st := range []coordinator.State{
		coordinator.Proposed, coordinator.OrderPublished, coordinator.Escrowed,
		coordinator.SecretKnown, coordinator.CounterClaiming, coordinator.Refunding,
	} {
		inFlight += len(s.records.ListByState(st))
	}

	return &DrainResponse{InFlightSwaps: int32(inFlight)}, nil
}

// AlertStream is the server-side handle StreamAlerts writes to.
type AlertStream interface {
	Send(*Alert) error
	Context() context.Context
}

// StreamAlerts streams operator-facing alerts (invariant violations,
// timeout escalations) to the caller until the stream's context is
// cancelled.
func (s *Server) StreamAlerts(req *struct{}, stream AlertStream) error {
	ch := make(chan Alert, 16)

	s.mtx.Lock()
	s.alertSubs[ch] = struct{}{}
	s.mtx.Unlock()

	defer func() {
		s.mtx.Lock()
		delete(s.alertSubs, ch)
		s.mtx.Unlock()
	}()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case a := <-ch:
			if err := stream.Send(&a); err != nil {
				return err
			}
		}
	}
}

// PublishAlert broadcasts an alert to every subscribed StreamAlerts caller.
func (s *Server) PublishAlert(a Alert) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for ch := range s.alertSubs {
		select {
		case ch <- a:
		default:
		}
	}
}

// serviceDesc is the hand-registered grpc.ServiceDesc fusiond registers
// this Server against, in place of a protoc-generated one.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "fusionbridge.swapd.Coordinator",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProposeSwap",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ProposeSwapRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.ProposeSwap(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/fusionbridge.swapd.Coordinator/ProposeSwap"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.ProposeSwap(ctx, req.(*ProposeSwapRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetSwap",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetSwapRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.GetSwap(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/fusionbridge.swapd.Coordinator/GetSwap"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.GetSwap(ctx, req.(*GetSwapRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "AbortSwap",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(AbortSwapRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.AbortSwap(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/fusionbridge.swapd.Coordinator/AbortSwap"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.AbortSwap(ctx, req.(*AbortSwapRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "Drain",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(DrainRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.Drain(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/fusionbridge.swapd.Coordinator/Drain"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.Drain(ctx, req.(*DrainRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamAlerts",
			ServerStreams: true,
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				s := srv.(*Server)
				return s.StreamAlerts(&struct{}{}, &grpcAlertStream{stream})
			},
		},
	},
	Metadata: "fusionrpc/coordinator.proto",
}

// grpcAlertStream adapts a grpc.ServerStream to the AlertStream interface.
type grpcAlertStream struct {
	grpc.ServerStream
}

func (g *grpcAlertStream) Send(a *Alert) error {
	return g.ServerStream.SendMsg(a)
}

// RegisterServer registers s against grpcServer using the hand-written
// ServiceDesc above.
func RegisterServer(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&serviceDesc, s)
}
