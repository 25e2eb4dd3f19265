package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haydenmc/KelvinBot/pkg/bus"
	"github.com/haydenmc/KelvinBot/pkg/config"
	"github.com/haydenmc/KelvinBot/pkg/services"
)

type stubService struct {
	id bus.ServiceID
}

func (s *stubService) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (s *stubService) HandleCommand(context.Context, bus.CommandPayload) error {
	return nil
}

func init() {
	services.Register("stub", func(id bus.ServiceID, _ config.ServiceSpec, _ bus.EventSink) (bus.Service, error) {
		return &stubService{id: id}, nil
	})
}

func TestNewBuildsRegisteredKind(t *testing.T) {
	svc, err := services.New(config.ServiceSpec{ID: "main", Kind: "stub"}, nil)
	require.NoError(t, err)

	stub, ok := svc.(*stubService)
	require.True(t, ok, "expected the stub constructor's product, got %#v", svc)
	assert.Equal(t, bus.ServiceID("main"), stub.id)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := services.New(config.ServiceSpec{ID: "main", Kind: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, services.ErrUnknownKind)
}

func TestRegisterRejectsDuplicateKind(t *testing.T) {
	assert.Panics(t, func() {
		services.Register("stub", func(bus.ServiceID, config.ServiceSpec, bus.EventSink) (bus.Service, error) {
			return nil, nil
		})
	})
}

func TestKindsListsRegistrations(t *testing.T) {
	assert.Contains(t, services.Kinds(), "stub")
}
