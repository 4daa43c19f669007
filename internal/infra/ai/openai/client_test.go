package openai

import (
    "testing"

    "github.com/stretchr/testify/assert"

    domai "github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
)

func TestExtractJSONPayloadStripsWrapping(t *testing.T) {
    got, err := extractJSONPayload("Sure, here it is:\n```json\n{\"summary\":\"x\"}\n```")
    assert.NoError(t, err)
    assert.Equal(t, `{"summary":"x"}`, got)
}

func TestExtractJSONPayloadBareObject(t *testing.T) {
    got, err := extractJSONPayload(`{"a":1}`)
    assert.NoError(t, err)
    assert.Equal(t, `{"a":1}`, got)
}

func TestExtractJSONPayloadNoObject(t *testing.T) {
    _, err := extractJSONPayload("the model refused to answer")
    assert.ErrorIs(t, err, domai.ErrEmptyResponse)
}
