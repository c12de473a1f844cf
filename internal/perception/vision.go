package perception

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

const visionSource = "gcp_vision"

// maxPDFPages is the synchronous file annotation page limit.
const maxPDFPages = 5

// VisionClientOptions builds client options from a credentials value that is
// either inline JSON or a file path. Empty means application default credentials.
func VisionClientOptions(credentials string) []option.ClientOption {
	creds := strings.TrimSpace(credentials)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// VisionExtractor runs Google Cloud Vision document text detection.
type VisionExtractor struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionExtractor creates a Cloud Vision client.
func NewVisionExtractor(ctx context.Context, opts ...option.ClientOption) (*VisionExtractor, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionExtractor{client: client}, nil
}

// Close releases the underlying client.
func (v *VisionExtractor) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}

// Extract implements Extractor.
func (v *VisionExtractor) Extract(ctx context.Context, artifact Artifact) (Signal, error) {
	if len(artifact.Data) == 0 {
		return Signal{}, nil
	}
	features := []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}

	if artifact.IsPDF() {
		pages := make([]int32, 0, maxPDFPages)
		for i := int32(1); i <= maxPDFPages; i++ {
			pages = append(pages, i)
		}
		resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig: &visionpb.InputConfig{Content: artifact.Data, MimeType: "application/pdf"},
				Features:    features,
				Pages:       pages,
			}},
		})
		if err != nil {
			return Signal{}, fmt.Errorf("vision BatchAnnotateFiles: %w", err)
		}
		var annotations []*visionpb.TextAnnotation
		for _, fr := range resp.GetResponses() {
			if msg := fr.GetError().GetMessage(); msg != "" {
				return Signal{}, fmt.Errorf("vision annotate file: %s", msg)
			}
			for _, ir := range fr.GetResponses() {
				if msg := ir.GetError().GetMessage(); msg != "" {
					continue
				}
				annotations = append(annotations, ir.GetFullTextAnnotation())
			}
		}
		return signalFromAnnotations(annotations), nil
	}

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: artifact.Data},
			Features: features,
		}},
	})
	if err != nil {
		return Signal{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return Signal{}, nil
	}
	r0 := resp.GetResponses()[0]
	if msg := r0.GetError().GetMessage(); msg != "" {
		return Signal{}, fmt.Errorf("vision annotate image: %s", msg)
	}
	return signalFromAnnotations([]*visionpb.TextAnnotation{r0.GetFullTextAnnotation()}), nil
}

func signalFromAnnotations(annotations []*visionpb.TextAnnotation) Signal {
	var texts []string
	var confSum float64
	var confN int
	for _, a := range annotations {
		text := strings.TrimSpace(a.GetText())
		if text == "" {
			continue
		}
		texts = append(texts, text)
		for _, p := range a.GetPages() {
			confSum += float64(p.GetConfidence())
			confN++
		}
	}
	if len(texts) == 0 {
		return Signal{}
	}
	conf := 0.0
	if confN > 0 {
		conf = confSum / float64(confN)
	}
	return Signal{Text: strings.Join(texts, "\n"), Confidence: clamp01(conf), Source: visionSource}
}

var _ Extractor = (*VisionExtractor)(nil)
