package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "giftgrove.gifting.v1.GiftingService"

const (
	methodGetRequest      = "GetRequest"
	methodPick            = "Pick"
	methodUnpick          = "Unpick"
	methodReserve         = "Reserve"
	methodAutoProcess     = "AutoProcess"
	methodSendEmails      = "SendEmails"
	methodCompleteCardJob = "CompleteCardJob"
)

// GiftingServer is the handler contract registered under ServiceName.
type GiftingServer interface {
	GetRequest(context.Context, *RequestIDMessage) (*RequestReply, error)
	Pick(context.Context, *ClaimRequest) (*RequestReply, error)
	Unpick(context.Context, *ClaimRequest) (*Empty, error)
	Reserve(context.Context, *ReserveRequest) (*ReserveReply, error)
	AutoProcess(context.Context, *AutoProcessRequest) (*AutoProcessReply, error)
	SendEmails(context.Context, *SendEmailsRequest) (*SendEmailsReply, error)
	CompleteCardJob(context.Context, *CompleteCardJobRequest) (*CardJobReply, error)
}

// ServiceDesc describes the gifting service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GiftingServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodGetRequest, GiftingServer.GetRequest),
		unaryMethod(methodPick, GiftingServer.Pick),
		unaryMethod(methodUnpick, GiftingServer.Unpick),
		unaryMethod(methodReserve, GiftingServer.Reserve),
		unaryMethod(methodAutoProcess, GiftingServer.AutoProcess),
		unaryMethod(methodSendEmails, GiftingServer.SendEmails),
		unaryMethod(methodCompleteCardJob, GiftingServer.CompleteCardJob),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "giftgrove/gifting/v1",
}

// RegisterGiftingServer registers server on registrar.
func RegisterGiftingServer(registrar grpc.ServiceRegistrar, server GiftingServer) {
	registrar.RegisterService(&ServiceDesc, server)
}

func unaryMethod[Request any, Reply any](name string, call func(GiftingServer, context.Context, *Request) (*Reply, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(Request)
			if err := decode(request); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(server.(GiftingServer), ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod}
			handler := func(ctx context.Context, intercepted any) (any, error) {
				return call(server.(GiftingServer), ctx, intercepted.(*Request))
			}
			return interceptor(ctx, request, info, handler)
		},
	}
}

// Client calls the gifting service over a connection using the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (client *Client) GetRequest(ctx context.Context, request *RequestIDMessage) (*RequestReply, error) {
	return invoke[RequestReply](ctx, client.conn, methodGetRequest, request)
}

func (client *Client) Pick(ctx context.Context, request *ClaimRequest) (*RequestReply, error) {
	return invoke[RequestReply](ctx, client.conn, methodPick, request)
}

func (client *Client) Unpick(ctx context.Context, request *ClaimRequest) (*Empty, error) {
	return invoke[Empty](ctx, client.conn, methodUnpick, request)
}

func (client *Client) Reserve(ctx context.Context, request *ReserveRequest) (*ReserveReply, error) {
	return invoke[ReserveReply](ctx, client.conn, methodReserve, request)
}

func (client *Client) AutoProcess(ctx context.Context, request *AutoProcessRequest) (*AutoProcessReply, error) {
	return invoke[AutoProcessReply](ctx, client.conn, methodAutoProcess, request)
}

func (client *Client) SendEmails(ctx context.Context, request *SendEmailsRequest) (*SendEmailsReply, error) {
	return invoke[SendEmailsReply](ctx, client.conn, methodSendEmails, request)
}

func (client *Client) CompleteCardJob(ctx context.Context, request *CompleteCardJobRequest) (*CardJobReply, error) {
	return invoke[CardJobReply](ctx, client.conn, methodCompleteCardJob, request)
}

func invoke[Reply any](ctx context.Context, conn grpc.ClientConnInterface, method string, request any) (*Reply, error) {
	reply := new(Reply)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, request, reply, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return reply, nil
}
