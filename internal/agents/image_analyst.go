package agents

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/CortexTrade/consts"
	"github.com/dyike/CortexTrade/internal/reasoner"
	"github.com/dyike/CortexTrade/models"
)

const imageSource = "image analysis"

// ImageRequest carries a chart image as a public URL or base64 payload.
type ImageRequest struct {
	URL     string
	Base64  string
	Context string
}

// ImageAnalyst reads a chart screenshot into ImageFindings.
type ImageAnalyst struct {
	reasoner reasoner.Reasoner
	template prompt.ChatTemplate
}

func NewImageAnalyst(r reasoner.Reasoner) *ImageAnalyst {
	return &ImageAnalyst{
		reasoner: r,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(mustLoadPrompt("image_analysis")),
			schema.UserMessage("User context: {context}"),
		),
	}
}

// Analyze returns the canonical no-image findings when the request has no image.
func (a *ImageAnalyst) Analyze(ctx context.Context, req ImageRequest) (models.ImageFindings, error) {
	if strings.TrimSpace(req.URL) == "" && strings.TrimSpace(req.Base64) == "" {
		return models.NoImageFindings(), nil
	}
	if a.reasoner == nil {
		return models.ImageFindings{}, models.ConfigError(imageSource, errors.New("no vision model configured"))
	}

	imageURL, err := imageReference(req)
	if err != nil {
		return models.ImageFindings{}, models.ValidationError(imageSource, err)
	}

	hint := strings.TrimSpace(req.Context)
	if hint == "" {
		hint = "(none)"
	}
	msgs, err := a.template.Format(ctx, map[string]any{"context": hint})
	if err != nil {
		return models.ImageFindings{}, fmt.Errorf("format image prompt: %w", err)
	}
	msgs = attachImage(msgs, imageURL)

	raw, err := a.reasoner.Generate(ctx, msgs, imageFindingsSchema)
	if err != nil {
		return models.ImageFindings{}, err
	}
	findings, err := decodeImageFindings(raw)
	if err != nil {
		return models.ImageFindings{}, models.ValidationError(imageSource, err)
	}
	return findings, nil
}

// imageReference returns the URL placed in the image part: the given http(s) URL,
// or a data URI built from the base64 payload.
func imageReference(req ImageRequest) (string, error) {
	if raw := strings.TrimSpace(req.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("imageUrl %q is not an absolute http(s) URL", raw)
		}
		return u.String(), nil
	}

	payload := strings.TrimSpace(req.Base64)
	mime := ""
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return "", errors.New("imageBase64 data URI must be base64 encoded")
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		if !strings.HasPrefix(mime, "image/") {
			return "", fmt.Errorf("imageBase64 has non-image media type %q", mime)
		}
		payload = data
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if decoded, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return "", errors.New("imageBase64 is not valid base64")
		}
	}
	if len(decoded) == 0 {
		return "", errors.New("imageBase64 is empty")
	}
	if mime == "" {
		mime = http.DetectContentType(decoded)
		if !strings.HasPrefix(mime, "image/") {
			mime = "image/png"
		}
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(decoded), nil
}

// attachImage turns the last user message into a text + image_url multi-content message.
func attachImage(msgs []*schema.Message, imageURL string) []*schema.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != schema.User {
			continue
		}
		msgs[i] = &schema.Message{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: msgs[i].Content},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: imageURL}},
			},
		}
		break
	}
	return msgs
}

type imageReply struct {
	Instrument        *string  `json:"instrument"`
	Timeframe         *string  `json:"timeframe"`
	Patterns          []string `json:"patterns"`
	SupportResistance []string `json:"supportResistance"`
	Notes             string   `json:"notes"`
	Signal            *struct {
		Direction  string   `json:"direction"`
		Confidence *float64 `json:"confidence"`
	} `json:"signal"`
}

func decodeImageFindings(raw json.RawMessage) (models.ImageFindings, error) {
	var reply imageReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return models.ImageFindings{}, fmt.Errorf("decode image findings: %w", err)
	}

	f := models.ImageFindings{
		Instrument:        blankToNil(reply.Instrument),
		Timeframe:         blankToNil(reply.Timeframe),
		Patterns:          nonNil(reply.Patterns),
		SupportResistance: nonNil(reply.SupportResistance),
		Notes:             strings.TrimSpace(reply.Notes),
		Signal:            models.ImageSignal{Direction: consts.DirectionUnknown},
	}
	if reply.Signal != nil {
		if d := strings.ToLower(strings.TrimSpace(reply.Signal.Direction)); d != "" {
			f.Signal.Direction = d
		}
		if reply.Signal.Confidence != nil {
			f.Signal.Confidence = *reply.Signal.Confidence
		}
	}
	if err := f.Validate(); err != nil {
		return models.ImageFindings{}, err
	}
	return f, nil
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
