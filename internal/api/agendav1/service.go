package agendav1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "agenda.v1.SchedulingService"

const (
	RequestBookingMethod        = "/" + ServiceName + "/RequestBooking"
	RequestCancellationMethod   = "/" + ServiceName + "/RequestCancellation"
	TransitionAppointmentMethod = "/" + ServiceName + "/TransitionAppointment"
	RescheduleAppointmentMethod = "/" + ServiceName + "/RescheduleAppointment"
	GetAppointmentMethod        = "/" + ServiceName + "/GetAppointment"
	ListAppointmentsMethod      = "/" + ServiceName + "/ListAppointments"
	OpenIntervalsMethod         = "/" + ServiceName + "/OpenIntervals"
	PreviewConflictsMethod      = "/" + ServiceName + "/PreviewConflicts"
)

type SchedulingServiceServer interface {
	RequestBooking(context.Context, *RequestBookingRequest) (*RequestBookingResponse, error)
	RequestCancellation(context.Context, *RequestCancellationRequest) (*RequestCancellationResponse, error)
	TransitionAppointment(context.Context, *TransitionAppointmentRequest) (*TransitionAppointmentResponse, error)
	RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*RescheduleAppointmentResponse, error)
	GetAppointment(context.Context, *GetAppointmentRequest) (*GetAppointmentResponse, error)
	ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error)
	OpenIntervals(context.Context, *OpenIntervalsRequest) (*OpenIntervalsResponse, error)
	PreviewConflicts(context.Context, *PreviewConflictsRequest) (*PreviewConflictsResponse, error)
}

// UnimplementedSchedulingServiceServer answers every method with codes.Unimplemented.
type UnimplementedSchedulingServiceServer struct{}

func (UnimplementedSchedulingServiceServer) RequestBooking(context.Context, *RequestBookingRequest) (*RequestBookingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestBooking not implemented")
}

func (UnimplementedSchedulingServiceServer) RequestCancellation(context.Context, *RequestCancellationRequest) (*RequestCancellationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestCancellation not implemented")
}

func (UnimplementedSchedulingServiceServer) TransitionAppointment(context.Context, *TransitionAppointmentRequest) (*TransitionAppointmentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method TransitionAppointment not implemented")
}

func (UnimplementedSchedulingServiceServer) RescheduleAppointment(context.Context, *RescheduleAppointmentRequest) (*RescheduleAppointmentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RescheduleAppointment not implemented")
}

func (UnimplementedSchedulingServiceServer) GetAppointment(context.Context, *GetAppointmentRequest) (*GetAppointmentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAppointment not implemented")
}

func (UnimplementedSchedulingServiceServer) ListAppointments(context.Context, *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAppointments not implemented")
}

func (UnimplementedSchedulingServiceServer) OpenIntervals(context.Context, *OpenIntervalsRequest) (*OpenIntervalsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method OpenIntervals not implemented")
}

func (UnimplementedSchedulingServiceServer) PreviewConflicts(context.Context, *PreviewConflictsRequest) (*PreviewConflictsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PreviewConflicts not implemented")
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingService_ServiceDesc, srv)
}

// unary adapts a typed server method to a grpc.MethodHandler, running any configured
// unary interceptor around it.
func unary[Req, Resp any](fullMethod string, call func(SchedulingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SchedulingService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestBooking", Handler: unary(RequestBookingMethod, SchedulingServiceServer.RequestBooking)},
		{MethodName: "RequestCancellation", Handler: unary(RequestCancellationMethod, SchedulingServiceServer.RequestCancellation)},
		{MethodName: "TransitionAppointment", Handler: unary(TransitionAppointmentMethod, SchedulingServiceServer.TransitionAppointment)},
		{MethodName: "RescheduleAppointment", Handler: unary(RescheduleAppointmentMethod, SchedulingServiceServer.RescheduleAppointment)},
		{MethodName: "GetAppointment", Handler: unary(GetAppointmentMethod, SchedulingServiceServer.GetAppointment)},
		{MethodName: "ListAppointments", Handler: unary(ListAppointmentsMethod, SchedulingServiceServer.ListAppointments)},
		{MethodName: "OpenIntervals", Handler: unary(OpenIntervalsMethod, SchedulingServiceServer.OpenIntervals)},
		{MethodName: "PreviewConflicts", Handler: unary(PreviewConflictsMethod, SchedulingServiceServer.PreviewConflicts)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agenda/v1/scheduling.proto",
}

type SchedulingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulingServiceClient(cc grpc.ClientConnInterface) *SchedulingServiceClient {
	return &SchedulingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SchedulingServiceClient) RequestBooking(ctx context.Context, in *RequestBookingRequest, opts ...grpc.CallOption) (*RequestBookingResponse, error) {
	return invoke[RequestBookingResponse](ctx, c.cc, RequestBookingMethod, in, opts)
}

func (c *SchedulingServiceClient) RequestCancellation(ctx context.Context, in *RequestCancellationRequest, opts ...grpc.CallOption) (*RequestCancellationResponse, error) {
	return invoke[RequestCancellationResponse](ctx, c.cc, RequestCancellationMethod, in, opts)
}

func (c *SchedulingServiceClient) TransitionAppointment(ctx context.Context, in *TransitionAppointmentRequest, opts ...grpc.CallOption) (*TransitionAppointmentResponse, error) {
	return invoke[TransitionAppointmentResponse](ctx, c.cc, TransitionAppointmentMethod, in, opts)
}

func (c *SchedulingServiceClient) RescheduleAppointment(ctx context.Context, in *RescheduleAppointmentRequest, opts ...grpc.CallOption) (*RescheduleAppointmentResponse, error) {
	return invoke[RescheduleAppointmentResponse](ctx, c.cc, RescheduleAppointmentMethod, in, opts)
}

func (c *SchedulingServiceClient) GetAppointment(ctx context.Context, in *GetAppointmentRequest, opts ...grpc.CallOption) (*GetAppointmentResponse, error) {
	return invoke[GetAppointmentResponse](ctx, c.cc, GetAppointmentMethod, in, opts)
}

func (c *SchedulingServiceClient) ListAppointments(ctx context.Context, in *ListAppointmentsRequest, opts ...grpc.CallOption) (*ListAppointmentsResponse, error) {
	return invoke[ListAppointmentsResponse](ctx, c.cc, ListAppointmentsMethod, in, opts)
}

func (c *SchedulingServiceClient) OpenIntervals(ctx context.Context, in *OpenIntervalsRequest, opts ...grpc.CallOption) (*OpenIntervalsResponse, error) {
	return invoke[OpenIntervalsResponse](ctx, c.cc, OpenIntervalsMethod, in, opts)
}

func (c *SchedulingServiceClient) PreviewConflicts(ctx context.Context, in *PreviewConflictsRequest, opts ...grpc.CallOption) (*PreviewConflictsResponse, error) {
	return invoke[PreviewConflictsResponse](ctx, c.cc, PreviewConflictsMethod, in, opts)
}
