package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/funvibe/flowc/internal/graph"
)

// Publisher ships a finished snapshot to a graph host with the unary
// GraphHost/Submit call. The target is a gRPC address.
type Publisher struct {
	// DialOptions replace the default insecure transport.
	DialOptions []grpc.DialOption
	Timeout     time.Duration
}

func (p *Publisher) Name() string { return "publish" }

func (p *Publisher) Emit(ctx context.Context, snap *graph.Snapshot, target string) (string, error) {
	opts := p.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", target, err)
	}
	defer conn.Close()

	req, err := snap.Message()
	if err != nil {
		return "", err
	}
	reply, err := graph.NewMessage(graph.ReplyMessage)
	if err != nil {
		return "", err
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := conn.Invoke(ctx, graph.SubmitMethod, req, reply); err != nil {
		return "", fmt.Errorf("publishing to %s: %w", target, err)
	}
	if accepted, _ := reply.GetFieldByName("accepted").(bool); !accepted {
		msg, _ := reply.GetFieldByName("message").(string)
		return "", fmt.Errorf("graph host %s rejected snapshot %s: %s", target, snap.ID, msg)
	}
	return target + "#" + snap.ID, nil
}

// ----------------------------------------------------------------------------
// Host side
// ----------------------------------------------------------------------------

// HostServer serves GraphHost on behalf of a loader function. Snapshots the
// loader accepts are answered with their node and edge counts; a loader
// error rejects the snapshot with its message.
type HostServer struct {
	Load func(ctx context.Context, snap *graph.Snapshot) error
}

// Register adds the GraphHost service to s.
func (h *HostServer) Register(s *grpc.Server) error {
	sd, err := graph.Service()
	if err != nil {
		return err
	}
	sdesc := &grpc.ServiceDesc{
		ServiceName: sd.GetFullyQualifiedName(),
		HandlerType: (*interface{})(nil),
		Metadata:    sd.GetFile().GetName(),
	}
	for _, method := range sd.GetMethods() {
		if method.IsClientStreaming() || method.IsServerStreaming() {
			continue
		}
		md := method
		sdesc.Methods = append(sdesc.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				return srv.(*HostServer).handleUnary(ctx, md, dec)
			},
		})
	}
	s.RegisterService(sdesc, h)
	return nil
}

func (h *HostServer) handleUnary(ctx context.Context, md *desc.MethodDescriptor, dec func(interface{}) error) (interface{}, error) {
	in := dynamic.NewMessage(md.GetInputType())
	if err := dec(in); err != nil {
		return nil, err
	}
	snap := graph.FromMessage(in)

	out := dynamic.NewMessage(md.GetOutputType())
	out.SetFieldByName("id", snap.ID)
	out.SetFieldByName("nodes", int32(len(snap.Nodes)))
	out.SetFieldByName("edges", int32(len(snap.Edges)))
	if err := h.load(ctx, snap); err != nil {
		out.SetFieldByName("accepted", false)
		out.SetFieldByName("message", err.Error())
		return out, nil
	}
	out.SetFieldByName("accepted", true)
	return out, nil
}

// load hands snap to the loader. A host without one rejects every
// submission.
func (h *HostServer) load(ctx context.Context, snap *graph.Snapshot) error {
	if h.Load == nil {
		return errors.New("no loader is registered")
	}
	return h.Load(ctx, snap)
}
