package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/ndwi-water-cli/internal/delivery"
	"github.com/forest-guardian/ndwi-water-cli/internal/location"
	"github.com/forest-guardian/ndwi-water-cli/internal/ndwi"
	"github.com/forest-guardian/ndwi-water-cli/internal/stac"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Runner interface {
	DefaultRequest(loc location.Location) delivery.Request
	Run(ctx context.Context, req delivery.Request) (*delivery.Result, error)
}

type Server struct {
	runner Runner
	logger logrus.FieldLogger
}

func NewServer(runner Runner, logger logrus.FieldLogger) *Server {
	return &Server{runner: runner, logger: logger}
}

// NewGRPCServer returns a grpc.Server exposing the analysis service and the
// standard health service.
func NewGRPCServer(srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(srv.logRequests))
	RegisterAnalysisServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

func (s *Server) logRequests(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := s.logger.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("rpc failed")
	} else {
		entry.Info("rpc served")
	}
	return resp, err
}

func (s *Server) ListLocations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	var locations []interface{}
	for _, loc := range location.Sorted() {
		locations = append(locations, map[string]interface{}{
			"key":         loc.Key,
			"name":        loc.Name,
			"lat":         loc.Lat,
			"lon":         loc.Lon,
			"description": loc.Description,
		})
	}
	return structpb.NewStruct(map[string]interface{}{"locations": locations})
}

func (s *Server) Analyze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.request(in.GetFields())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, status.Error(errorCode(err), err.Error())
	}
	out, err := structpb.NewStruct(resultFields(res))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return out, nil
}

func errorCode(err error) codes.Code {
	switch {
	case errors.Is(err, delivery.ErrInvalidRequest):
		return codes.InvalidArgument
	case errors.Is(err, stac.ErrNoScenes):
		return codes.NotFound
	case errors.Is(err, ndwi.ErrNoValidData):
		return codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

func (s *Server) request(f map[string]*structpb.Value) (delivery.Request, error) {
	var (
		loc location.Location
		err error
	)
	_, hasLat := f["lat"]
	_, hasLon := f["lon"]
	switch {
	case hasLat && hasLon:
		loc, err = location.Custom(f["lat"].GetNumberValue(), f["lon"].GetNumberValue())
	case f["location"].GetStringValue() != "":
		loc, err = location.Get(f["location"].GetStringValue())
	default:
		err = errors.New("either location or lat/lon is required")
	}
	if err != nil {
		return delivery.Request{}, err
	}

	req := s.runner.DefaultRequest(loc)
	if v, ok := f["days_back"]; ok {
		req.DaysBack = int(v.GetNumberValue())
	}
	if v, ok := f["buffer_km"]; ok {
		req.BufferKM = v.GetNumberValue()
	}
	if v, ok := f["cloud_cover"]; ok {
		req.CloudCoverMax = v.GetNumberValue()
	}
	if v, ok := f["threshold"]; ok {
		req.Threshold = v.GetNumberValue()
	}
	if v, ok := f["plot"]; ok {
		req.Plot = v.GetBoolValue()
	}
	if v := f["start"].GetStringValue(); v != "" {
		if req.Start, err = time.Parse(time.DateOnly, v); err != nil {
			return req, fmt.Errorf("invalid start date: %w", err)
		}
	}
	if v := f["end"].GetStringValue(); v != "" {
		if req.End, err = time.Parse(time.DateOnly, v); err != nil {
			return req, fmt.Errorf("invalid end date: %w", err)
		}
	}
	return req, nil
}

func resultFields(res *delivery.Result) map[string]interface{} {
	scene := map[string]interface{}{
		"id":       res.Scene.ID,
		"datetime": res.Scene.Properties.Datetime.Format(time.RFC3339),
		"platform": res.Scene.Properties.Platform,
	}
	if cc, ok := res.Scene.CloudCover(); ok {
		scene["cloud_cover"] = cc
	}
	uploaded := make([]interface{}, 0, len(res.Files.Uploaded))
	for _, u := range res.Files.Uploaded {
		uploaded = append(uploaded, u)
	}
	return map[string]interface{}{
		"location": res.Location.Name,
		"lat":      res.Location.Lat,
		"lon":      res.Location.Lon,
		"start":    res.Start.Format(time.DateOnly),
		"end":      res.End.Format(time.DateOnly),
		"scene":    scene,
		"stats": map[string]interface{}{
			"count":            res.Stats.Count,
			"mean":             res.Stats.Mean,
			"std":              res.Stats.Std,
			"min":              res.Stats.Min,
			"max":              res.Stats.Max,
			"water_percentage": res.Stats.WaterPercentage,
			"water_pixels":     res.Stats.WaterPixels,
			"total_pixels":     res.Stats.TotalPixels,
			"nodata_pixels":    res.Stats.NoDataPixels,
		},
		"interpretation": map[string]interface{}{
			"level":   string(res.Interpretation.Level),
			"summary": res.Interpretation.Summary,
		},
		"files": map[string]interface{}{
			"ndwi":      res.Files.NDWI,
			"mask":      res.Files.Mask,
			"plot":      res.Files.Plot,
			"footprint": res.Files.Footprint,
			"uploaded":  uploaded,
		},
	}
}
