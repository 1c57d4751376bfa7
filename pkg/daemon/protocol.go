package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
)

// Control request types. Every other request type is a dispatch.Op.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Request is one newline-delimited JSON message from a client.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers the Request with the same ID. Responses pushed to
// subscribers carry an Event and no ID.
type Response struct {
	ID     string              `json:"id,omitempty"`
	OK     bool                `json:"ok"`
	Result json.RawMessage     `json:"result,omitempty"`
	Error  *dispatch.Rejection `json:"error,omitempty"`
	Event  *tabgroup.Event     `json:"event,omitempty"`
}

// Handler runs one decoded operation. *dispatch.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, op dispatch.Op, payload json.RawMessage) (any, error)
}

// Serve runs a non-control request through h and builds its response.
func Serve(ctx context.Context, h Handler, req Request) Response {
	resp := Response{ID: req.ID}
	result, err := h.Handle(ctx, dispatch.Op(req.Type), req.Payload)
	if err != nil {
		resp.Error = asRejection(dispatch.Op(req.Type), err)
		return resp
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = &dispatch.Rejection{
				Op:      dispatch.Op(req.Type),
				Kind:    dispatch.KindInternal,
				Message: fmt.Sprintf("encode result: %v", err),
			}
			return resp
		}
		resp.Result = data
	}
	resp.OK = true
	return resp
}

func asRejection(op dispatch.Op, err error) *dispatch.Rejection {
	var rej *dispatch.Rejection
	if errors.As(err, &rej) {
		return rej
	}
	return &dispatch.Rejection{Op: op, Kind: dispatch.KindOf(err), Message: err.Error(), Err: err}
}

// undecodableResponse answers a line that is not a Request. The request id
// is unknown, so the response carries none.
func undecodableResponse(err error) Response {
	return Response{Error: &dispatch.Rejection{
		Kind:    dispatch.KindInvalidRequest,
		Message: "malformed request: " + err.Error(),
		Err:     err,
	}}
}

func eventResponse(ev tabgroup.Event) Response {
	return Response{OK: true, Event: &ev}
}
