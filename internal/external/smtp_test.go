package external

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"farewatch/internal/types"
)

type mockDialer struct {
	sendFn func(m ...*gomail.Message) error
	sent   []*gomail.Message
}

func (d *mockDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	if d.sendFn != nil {
		return d.sendFn(m...)
	}
	return nil
}

func TestSMTPSend_Success(t *testing.T) {
	d := &mockDialer{}
	client := NewSMTPClientWithDialer(d, nil)

	msgID, err := client.Send(context.Background(), priceAlertInput())
	require.NoError(t, err)
	assert.Equal(t, "<wch_01H8Z@farewatch>", msgID)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"traveler@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"<wch_01H8Z@farewatch>"}, m.GetHeader("Message-ID"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "multipart/alternative")
	assert.Contains(t, buf.String(), "JFK to LHR is now $412")
}

func TestSMTPSend_InvalidRecipient(t *testing.T) {
	d := &mockDialer{}
	in := priceAlertInput()
	in.To = "not an address"

	_, err := NewSMTPClientWithDialer(d, nil).Send(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationInvalidEmail, appErrorCode(t, err))
	assert.Empty(t, d.sent)
}

func TestSMTPSend_RelayFailure(t *testing.T) {
	d := &mockDialer{sendFn: func(...*gomail.Message) error { return errors.New("554 relay denied") }}

	_, err := NewSMTPClientWithDialer(d, nil).Send(context.Background(), priceAlertInput())
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, appErrorCode(t, err))
}

func TestSMTPSend_CancelledContext(t *testing.T) {
	d := &mockDialer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSMTPClientWithDialer(d, nil).Send(ctx, priceAlertInput())
	require.Error(t, err)
	assert.Empty(t, d.sent)
}
