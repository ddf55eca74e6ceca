package dispatch

import (
	"context"
	"strings"

	"github.com/BaSui01/agentrouter/types"
)

// Classifier is the external text-classification collaborator. It returns
// the raw label for one dimension; validation against the dimension's label
// set happens in DimensionClassifier, so implementations may be backed by
// anything from a keyword table to a model call.
type Classifier interface {
	Classify(ctx context.Context, text string, dim Dimension) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string, dim Dimension) (string, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, text string, dim Dimension) (string, error) {
	return f(ctx, text, dim)
}

// DimensionClassifier binds a Classifier to one Dimension and enforces the
// contract: non-blank input, exactly one declared label out, no retries.
type DimensionClassifier struct {
	Dimension  Dimension
	Classifier Classifier
}

// Classify returns a validated label for text.
func (c DimensionClassifier) Classify(ctx context.Context, text string) (Label, error) {
	if strings.TrimSpace(text) == "" {
		return "", types.NewError(types.ErrInvalidInput, "text is empty")
	}
	raw, err := c.Classifier.Classify(ctx, text, c.Dimension)
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return "", err
		}
		return "", types.Errorf(types.ErrClassifierFailure, "classify %s", c.Dimension.Name).WithCause(err)
	}
	return c.Dimension.Parse(raw)
}
