package genai

import (
	"context"
	"encoding/base64"
	"log/slog"

	"imagegen-mcp-server/internal/config"

	pb "github.com/Clarifai/clarifai-go-grpc/proto/clarifai/api"
	statuspb "github.com/Clarifai/clarifai-go-grpc/proto/clarifai/api/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// clarifaiV2 is the subset of pb.V2Client this backend uses. Kept small
// so tests can mock it.
type clarifaiV2 interface {
	PostModelOutputs(ctx context.Context, in *pb.PostModelOutputsRequest, opts ...grpc.CallOption) (*pb.MultiOutputResponse, error)
	ListModels(ctx context.Context, in *pb.ListModelsRequest, opts ...grpc.CallOption) (*pb.MultiModelResponse, error)
}

// Default model context when the caller names no model. Matches the
// public stable-diffusion-xl deployment.
const (
	clarifaiDefaultModel  = "stable-diffusion-xl"
	clarifaiDefaultUserID = "stability-ai"
	clarifaiDefaultAppID  = "stable-diffusion-2"
	clarifaiPublicUserID  = "clarifai"
	clarifaiPublicAppID   = "main"
)

type clarifaiGenerator struct {
	conn   *grpc.ClientConn
	api    clarifaiV2
	pat    string
	model  string
	logger *slog.Logger
}

// newClarifaiGenerator dials the Clarifai gRPC API over TLS. The
// connection lives for a single tool call; the router closes it.
func newClarifaiGenerator(src config.Source, model string) (Generator, error) {
	pat, err := credential(src, "CLARIFAI_PAT", "clarifai")
	if err != nil {
		return nil, err
	}

	creds := grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
	conn, dialErr := grpc.Dial(ClarifaiAddr, creds)
	if dialErr != nil {
		return nil, newError(KindConfiguration, "failed to connect to Clarifai at %s: %v", ClarifaiAddr, dialErr)
	}

	return &clarifaiGenerator{
		conn:   conn,
		api:    pb.NewV2Client(conn),
		pat:    pat,
		model:  model,
		logger: slog.Default(),
	}, nil
}

func (g *clarifaiGenerator) Close() error {
	if g.conn != nil {
		return g.conn.Close()
	}
	return nil
}

// authContext adds the PAT authorization header to the context.
func (g *clarifaiGenerator) authContext(ctx context.Context) context.Context {
	return metadata.NewOutgoingContext(ctx, metadata.Pairs("Authorization", "Key "+g.pat))
}

func (g *clarifaiGenerator) Generate(ctx context.Context, prompt string, opts Options) (map[string]interface{}, error) {
	if len(opts.Images) > 0 {
		return nil, newError(KindUnsupported, "provider %q does not accept input images", "clarifai")
	}
	if opts.ResponseFormat == "url" {
		return nil, newError(KindUnsupported, "provider %q only returns base64 image data", "clarifai")
	}

	modelID := g.model
	userID, appID := "", ""
	if modelID == "" {
		modelID = clarifaiDefaultModel
		userID = clarifaiDefaultUserID
		appID = clarifaiDefaultAppID
		g.logger.Debug("No model provided, defaulting", "model_id", modelID)
	}

	grpcRequest := &pb.PostModelOutputsRequest{
		UserAppId: &pb.UserAppIDSet{UserId: userID, AppId: appID},
		ModelId:   modelID,
		Inputs: []*pb.Input{
			{
				Data: &pb.Data{
					Text: &pb.Text{Raw: prompt},
				},
			},
		},
	}

	g.logger.Debug("Calling PostModelOutputs", "user_id", userID, "app_id", appID, "model_id", modelID)
	resp, err := g.api.PostModelOutputs(g.authContext(ctx), grpcRequest)
	if err != nil {
		return nil, mapClarifaiError(err)
	}
	if resp.GetStatus().GetCode() != statuspb.StatusCode_SUCCESS {
		return nil, mapClarifaiStatus(resp.GetStatus())
	}

	images := make([]interface{}, 0, len(resp.Outputs))
	for _, output := range resp.Outputs {
		if output.GetData().GetImage() == nil || len(output.Data.Image.Base64) == 0 {
			continue
		}
		images = append(images, map[string]interface{}{
			"b64_json":  base64.StdEncoding.EncodeToString(output.Data.Image.Base64),
			"mime_type": "image/png",
		})
	}

	return map[string]interface{}{"images": images}, nil
}

// Models lists text-to-image model IDs from the public clarifai/main app.
func (g *clarifaiGenerator) Models(ctx context.Context) ([]string, error) {
	grpcRequest := &pb.ListModelsRequest{
		UserAppId: &pb.UserAppIDSet{UserId: clarifaiPublicUserID, AppId: clarifaiPublicAppID},
		Page:      1,
		PerPage:   50,
	}

	resp, err := g.api.ListModels(g.authContext(ctx), grpcRequest)
	if err != nil {
		return nil, mapClarifaiError(err)
	}
	if resp.GetStatus().GetCode() != statuspb.StatusCode_SUCCESS {
		return nil, mapClarifaiStatus(resp.GetStatus())
	}

	ids := make([]string, 0, len(resp.Models))
	for _, model := range resp.Models {
		ids = append(ids, model.Id)
	}
	return ids, nil
}

// mapClarifaiError folds a gRPC call error into the generation taxonomy.
func mapClarifaiError(err error) *Error {
	s, ok := status.FromError(err)
	if !ok {
		return newError(KindAPI, "%v", err)
	}
	switch s.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return newError(KindAuth, "%s", s.Message())
	case codes.ResourceExhausted:
		return newError(KindRateLimit, "%s", s.Message())
	case codes.InvalidArgument:
		return newError(KindInvalidRequest, "%s", s.Message())
	case codes.NotFound:
		return &Error{Kind: KindAPI, StatusCode: 404, Message: s.Message()}
	default:
		return newError(KindAPI, "%s", s.Message())
	}
}

// mapClarifaiStatus folds a non-SUCCESS API status into the taxonomy.
func mapClarifaiStatus(st *statuspb.Status) *Error {
	message := st.GetDescription()
	if details := st.GetDetails(); details != "" {
		message = message + ": " + details
	}
	return newError(KindAPI, "%s", message)
}
