package sending

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsubscribeHeaders(t *testing.T) {
	h := UnsubscribeHeaders("https://list.example.com/", "a+b@x.io")
	assert.Equal(t, "<https://list.example.com/api/unsubscribe?email=a%2Bb%40x.io>", h["List-Unsubscribe"])
	assert.Equal(t, "List-Unsubscribe=One-Click", h["List-Unsubscribe-Post"])
	assert.Nil(t, UnsubscribeHeaders("", "a@x.io"))
}
