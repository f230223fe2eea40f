package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

type AnalysisClient struct {
	conn *grpc.ClientConn
}

func NewAnalysisClient(serverAddr string, opts ...grpc.DialOption) (*AnalysisClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(serverAddr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to analysis server: %w", err)
	}
	return &AnalysisClient{conn: conn}, nil
}

func (c *AnalysisClient) Close() error {
	return c.conn.Close()
}

func (c *AnalysisClient) ListLocations(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listLocationsMethod, &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analyze runs a remote analysis. params uses the same keys as the request
// fields of the server: location or lat/lon, days_back, start, end,
// buffer_km, cloud_cover, threshold and plot.
func (c *AnalysisClient) Analyze(ctx context.Context, params map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, analyzeMethod, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
