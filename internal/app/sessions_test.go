package app_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
)

func TestBindAndLookup(t *testing.T) {
	reg := app.NewSessionRegistry()

	reg.BindPublisher("sid-t", "math101")
	reg.BindSubscriber("sid-s", "math101")

	room, role, ok := reg.Lookup("sid-t")
	require.True(t, ok)
	require.Equal(t, domain.RoomID("math101"), room)
	require.Equal(t, domain.RolePublisher, role)

	_, role, ok = reg.Lookup("sid-s")
	require.True(t, ok)
	require.Equal(t, domain.RoleSubscriber, role)

	_, _, ok = reg.Lookup("sid-ghost")
	require.False(t, ok)
}

func TestRebindReplacesRecordEntirely(t *testing.T) {
	reg := app.NewSessionRegistry()

	reg.BindSubscriber("sid-s", "math101")
	require.NoError(t, reg.RecordTransport("sid-s", domain.WebcamVideo, "transport-1"))
	require.NoError(t, reg.RecordEntity("sid-s", domain.WebcamVideo, "consumer-1"))

	// Same identity binds to another room: no merge, fresh kind records.
	reg.BindSubscriber("sid-s", "physics")
	room, _, ok := reg.Lookup("sid-s")
	require.True(t, ok)
	require.Equal(t, domain.RoomID("physics"), room)

	kr, ok := reg.KindRecord("sid-s", domain.WebcamVideo)
	require.True(t, ok)
	require.Empty(t, kr.TransportID)
	require.Empty(t, kr.EntityID)
}

func TestRecordOnUnboundSessionFails(t *testing.T) {
	reg := app.NewSessionRegistry()
	require.ErrorIs(t, reg.RecordTransport("sid-ghost", domain.WebcamVideo, "transport-1"), app.ErrSessionNotFound)
	require.ErrorIs(t, reg.RecordEntity("sid-ghost", domain.WebcamVideo, "producer-1"), app.ErrSessionNotFound)
}

func TestKindRecordsAreIndependentPerKind(t *testing.T) {
	reg := app.NewSessionRegistry()
	reg.BindPublisher("sid-t", "math101")

	require.NoError(t, reg.RecordTransport("sid-t", domain.WebcamVideo, "transport-1"))
	require.NoError(t, reg.RecordTransport("sid-t", domain.ScreenVideo, "transport-2"))

	kr, _ := reg.KindRecord("sid-t", domain.WebcamVideo)
	require.Equal(t, "transport-1", kr.TransportID)
	kr, _ = reg.KindRecord("sid-t", domain.ScreenVideo)
	require.Equal(t, "transport-2", kr.TransportID)
	kr, _ = reg.KindRecord("sid-t", domain.WebcamAudio)
	require.Empty(t, kr.TransportID)
}

func TestGenerationAdvancesOnRebind(t *testing.T) {
	reg := app.NewSessionRegistry()

	g1 := reg.BindSubscriber("sid-s", "math101")
	require.True(t, reg.Matches("sid-s", g1))

	g2 := reg.BindSubscriber("sid-s", "math101")
	require.Greater(t, g2, g1)
	require.False(t, reg.Matches("sid-s", g1), "stale generation must not match")
	require.True(t, reg.Matches("sid-s", g2))
}

func TestUnbindReturnsRecordOnce(t *testing.T) {
	reg := app.NewSessionRegistry()
	gen := reg.BindSubscriber("sid-s", "math101")
	require.NoError(t, reg.RecordTransport("sid-s", domain.WebcamVideo, "transport-1"))

	rec, ok := reg.Unbind("sid-s")
	require.True(t, ok)
	require.Equal(t, domain.RoomID("math101"), rec.Room)
	require.Equal(t, gen, rec.Generation)
	require.Equal(t, "transport-1", rec.Kinds[domain.WebcamVideo].TransportID)

	_, ok = reg.Unbind("sid-s")
	require.False(t, ok)
	require.False(t, reg.Matches("sid-s", gen))
}
