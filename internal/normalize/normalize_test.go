package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cheersanimesh/research-knowledge-graph/internal/model"
)

func TestLabelTitleCasesAndCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "Gaussian Splatting", Label("  gaussian   splatting "))
	assert.Equal(t, "Neural Radiance Fields", Label("neural radiance fields"))
}

func TestLabelPreservesAcronyms(t *testing.T) {
	assert.Equal(t, "CNN", Label("CNN"))
	assert.Equal(t, "3D Gaussian Splatting", Label("3D gaussian splatting"))
	assert.Equal(t, "SSIM Score", Label("SSIM score"))
}

func TestLabelIsIdempotent(t *testing.T) {
	for _, raw := range []string{"  gaussian   splatting ", "3D Gaussian Splatting", "CNN", "a"} {
		once := Label(raw)
		assert.Equal(t, once, Label(once), "raw=%q", raw)
	}
}

func TestEntityFromValidatesType(t *testing.T) {
	e, err := EntityFrom(model.ExtractedEntity{Type: "concept", Label: "attention"})
	assert.NoError(t, err)
	assert.Equal(t, model.NodeConcept, e.Type)
	assert.Equal(t, "Attention", e.Label)

	// Plural drift from extraction is tolerated.
	e, err = EntityFrom(model.ExtractedEntity{Type: "Methods", Label: "beam search"})
	assert.NoError(t, err)
	assert.Equal(t, model.NodeMethod, e.Type)

	_, err = EntityFrom(model.ExtractedEntity{Type: "organization", Label: "DeepMind"})
	assert.True(t, errors.Is(err, ErrInvalidEntityType))

	// Paper nodes are created from ingestion metadata, never extraction.
	_, err = EntityFrom(model.ExtractedEntity{Type: "paper", Label: "Some Paper"})
	assert.True(t, errors.Is(err, ErrInvalidEntityType))

	_, err = EntityFrom(model.ExtractedEntity{Type: "concept", Label: "   "})
	assert.True(t, errors.Is(err, ErrInvalidEntityType))
}

func TestEntityFromKeepsAuthorCasing(t *testing.T) {
	e, err := EntityFrom(model.ExtractedEntity{Type: "author", Label: "Yann  LeCun"})
	assert.NoError(t, err)
	assert.Equal(t, "Yann LeCun", e.Label)
}

func TestEntitiesFoldsDuplicates(t *testing.T) {
	raw := []model.ExtractedEntity{
		{Type: "method", Label: "ResNet", Description: "residual network"},
		{Type: "method", Label: "resnet"},
		{Type: "concept", Label: "resnet"}, // different type, different key
		{Type: "widget", Label: "bad"},
	}
	kept, rejected := Entities(raw)

	assert.Len(t, kept, 2)
	assert.Len(t, rejected, 1)
	assert.Equal(t, "Resnet", kept[0].Label)
	assert.Equal(t, model.NodeMethod, kept[0].Type)
	assert.Equal(t, "residual network", kept[0].Properties[model.PropDescription])
	assert.Equal(t, model.NodeConcept, kept[1].Type)
}

func TestEntitiesDuplicatePropertiesDoNotOverwrite(t *testing.T) {
	raw := []model.ExtractedEntity{
		{Type: "dataset", Label: "ImageNet", Description: "first"},
		{Type: "dataset", Label: "imagenet", Description: "second"},
	}
	kept, _ := Entities(raw)
	assert.Len(t, kept, 1)
	assert.Equal(t, "first", kept[0].Properties[model.PropDescription])
}
