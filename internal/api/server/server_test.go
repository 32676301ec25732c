package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/ginext"
)

func TestNew(t *testing.T) {
	r := ginext.New()

	s := New(":8080", r, 3*time.Second, 7*time.Second)
	assert.Equal(t, ":8080", s.Addr)
	assert.Equal(t, 3*time.Second, s.ReadTimeout)
	assert.Equal(t, 7*time.Second, s.WriteTimeout)
}

func TestNew_DefaultTimeouts(t *testing.T) {
	r := ginext.New()

	s := New(":8080", r, 0, 0)
	assert.Equal(t, defaultReadTimeout, s.ReadTimeout)
	assert.Equal(t, defaultWriteTimeout, s.WriteTimeout)
}
