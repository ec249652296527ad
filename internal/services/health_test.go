package services

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	srv := health.NewServer()
	healthpb.RegisterHealthServer(server, srv)
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reporter := NewHealthReporter(srv, pinger{}, running(true), time.Hour, zerolog.Nop())
	reporter.Check(ctx)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	for _, service := range []string{"", DatabaseService, PipelineService} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		if resp.Status != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Check(%q) = %s", service, resp.Status)
		}
	}

	reporter.pipeline = running(false)
	reporter.Check(ctx)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: PipelineService})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("stopped pipeline reported %v, %v", resp, err)
	}
}
