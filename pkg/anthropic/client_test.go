package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "  {\"price\": 45.5"},
			{Type: "text", Text: ", \"currency_symbol\": \"£\"}  "},
		},
	}
	assert.Equal(t, `{"price": 45.5, "currency_symbol": "£"}`, resp.Text())
}

func TestMessageResponseText_Empty(t *testing.T) {
	resp := &MessageResponse{}
	assert.Empty(t, resp.Text())
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}
