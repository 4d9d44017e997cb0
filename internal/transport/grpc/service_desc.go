package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "appointly.v1.BookingService"

// BookingServiceServer is the RPC surface of the booking engine.
type BookingServiceServer interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResponse, error)
	GetBooking(ctx context.Context, req *GetBookingRequest) (*BookingResponse, error)
	TransitionStatus(ctx context.Context, req *TransitionStatusRequest) (*BookingResponse, error)
	AvailableSlots(ctx context.Context, req *AvailableSlotsRequest) (*AvailableSlotsResponse, error)
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateBooking", BookingServiceServer.CreateBooking),
		unaryHandler("GetBooking", BookingServiceServer.GetBooking),
		unaryHandler("TransitionStatus", BookingServiceServer.TransitionStatus),
		unaryHandler("AvailableSlots", BookingServiceServer.AvailableSlots),
	},
	Metadata: "appointly/v1/bookings",
}
