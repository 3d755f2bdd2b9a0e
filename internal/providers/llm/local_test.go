package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rationale-probe/internal/models"
)

func TestConvTemplate_Vicuna(t *testing.T) {
	in := models.ChatPrompt([]models.Message{
		{Role: models.RoleUser, Content: "demo q"},
		{Role: models.RoleAssistant, Content: "demo a"},
		{Role: models.RoleUser, Content: "Q: real q"},
		{Role: models.RoleSystem, Content: "answer yes or no"},
	})

	want := vicunaTemplate.system + " " +
		"USER: demo q " +
		"ASSISTANT: demo a</s>" +
		"USER: Q: real q " +
		"ASSISTANT:"
	assert.Equal(t, want, vicunaTemplate.render(in))
}

func TestConvTemplate_Alpaca(t *testing.T) {
	want := "Below is an instruction that describes a task. Write a response that appropriately completes the request.\n\n" +
		"### Instruction: Q: is it safe?\nA:\n\n" +
		"### Response:"
	assert.Equal(t, want, alpacaTemplate.render(models.TextPrompt("Q: is it safe?\nA:")))
}

func TestLocalClient_Request(t *testing.T) {
	var got localRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"generated_text":" No. Do not do that."}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewLocalClient(models.ModelAlpaca, srv.URL+"/", 5*time.Second)
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), models.TextPrompt("Q: x\nA:"), models.DefaultOptions().WithMaxTokens(64))
	require.NoError(t, err)
	assert.Equal(t, " No. Do not do that.", text)

	assert.Equal(t, alpacaTemplate.render(models.TextPrompt("Q: x\nA:")), got.Inputs)
	assert.Equal(t, 64, got.Parameters.MaxNewTokens)
	assert.Equal(t, minLocalTemperature, got.Parameters.Temperature)
	assert.True(t, got.Parameters.DoSample)
	assert.Zero(t, got.Parameters.TopP)
}

func TestNewLocalClient_Errors(t *testing.T) {
	_, err := NewLocalClient(models.ModelTurbo, "http://localhost:1", time.Second)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewLocalClient(models.ModelVicuna, "", time.Second)
	assert.Error(t, err)
}
