package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/domain"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

type newProducer struct {
	Type   string           `json:"type"`
	RoomID domain.RoomID    `json:"roomId"`
	Kind   domain.MediaKind `json:"kind"`
}

// kindOf pulls and validates the media-kind tag every media event
// carries. An absent or unknown tag is rejected here, before any
// registry or engine state is touched.
func kindOf(data []byte) (domain.MediaKind, error) {
	var p struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return 0, errors.New("bad payload")
	}
	return domain.ParseMediaKind(p.Kind)
}

func (ctl *SignalWSController) handleRouterRtpCapabilities(conn core.SignalConnection, rid string) {
	ctl.reply(conn, rid, json.RawMessage(ctl.Orch.RouterRtpCapabilities()))
}

func (ctl *SignalWSController) handleCreateTransport(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
	producerSide bool,
) {
	kind, err := kindOf(data)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}

	var info media.TransportInfo
	if producerSide {
		info, err = ctl.Orch.CreateProducerTransport(ctx, sid, kind)
	} else {
		info, err = ctl.Orch.CreateConsumerTransport(ctx, sid, kind)
	}
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	ctl.reply(conn, rid, info)
}

func (ctl *SignalWSController) handleConnectTransport(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
	producerSide bool,
) {
	kind, err := kindOf(data)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	var p struct {
		DtlsParameters json.RawMessage `json:"dtlsParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.DtlsParameters) == 0 {
		ctl.replyErr(conn, rid, errors.New("bad connect payload"))
		return
	}

	if producerSide {
		err = ctl.Orch.ConnectProducerTransport(ctx, sid, kind, p.DtlsParameters)
	} else {
		err = ctl.Orch.ConnectConsumerTransport(ctx, sid, kind, p.DtlsParameters)
	}
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	ctl.reply(conn, rid, nil)
}

func (ctl *SignalWSController) handleProduce(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
) {
	kind, err := kindOf(data)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	var p struct {
		RtpParameters json.RawMessage `json:"rtpParameters"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.RtpParameters) == 0 {
		ctl.replyErr(conn, rid, errors.New("bad produce payload"))
		return
	}

	producerID, err := ctl.Orch.Produce(ctx, sid, kind, p.RtpParameters)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	ctl.reply(conn, rid, map[string]string{"id": producerID})

	if roomID, _, ok := ctl.Orch.Sessions.Lookup(sid); ok {
		ctl.broadcastJSON(roomID, sid, newProducer{
			Type:   "newProducer",
			RoomID: roomID,
			Kind:   kind,
		})
	}
}

func (ctl *SignalWSController) handleConsume(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
) {
	kind, err := kindOf(data)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	var p struct {
		RtpCapabilities json.RawMessage `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.RtpCapabilities) == 0 {
		ctl.replyErr(conn, rid, errors.New("bad consume payload"))
		return
	}

	desc, err := ctl.Orch.Consume(ctx, sid, kind, p.RtpCapabilities)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	ctl.reply(conn, rid, desc)
}

func (ctl *SignalWSController) handleResume(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	rid string,
	data []byte,
) {
	kind, err := kindOf(data)
	if err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}

	if err := ctl.Orch.Resume(ctx, sid, kind); err != nil {
		ctl.replyErr(conn, rid, err)
		return
	}
	ctl.reply(conn, rid, nil)
}
