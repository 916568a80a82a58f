package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	DefaultBedrockModel     = "amazon.titan-embed-text-v2:0"
	DefaultBedrockDimension = 1024
)

// InvokeModelAPI is the slice of the Bedrock runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements Embedder with Amazon Titan text embeddings.
type BedrockClient struct {
	api       InvokeModelAPI
	model     string
	dimension int
}

var _ Embedder = (*BedrockClient)(nil)

// NewBedrockClient loads the default AWS credential chain and creates a
// Bedrock runtime client. An empty region defers to the environment.
func NewBedrockClient(ctx context.Context, region, model string, dimension int) (*BedrockClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewBedrockClientWithAPI(bedrockruntime.NewFromConfig(awsCfg), model, dimension), nil
}

// NewBedrockClientWithAPI wraps an existing runtime client.
func NewBedrockClientWithAPI(api InvokeModelAPI, model string, dimension int) *BedrockClient {
	if model == "" {
		model = DefaultBedrockModel
	}
	if dimension == 0 {
		dimension = DefaultBedrockDimension
	}
	return &BedrockClient{api: api, model: model, dimension: dimension}
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Embed generates an embedding vector for text.
func (c *BedrockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{
		InputText:  text,
		Dimensions: c.dimension,
		Normalize:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoke model: %w", err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Embedding) != c.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(resp.Embedding), c.dimension)
	}
	return resp.Embedding, nil
}

func (c *BedrockClient) Model() string {
	return c.model
}

func (c *BedrockClient) Dimension() int {
	return c.dimension
}
