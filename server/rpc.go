package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
	"github.com/tailored-agentic-units/backlog/service"
	"github.com/tailored-agentic-units/backlog/store"
)

// Connect procedures of the triage RPC service. Messages are
// google.protobuf.Struct values shaped like the HTTP API bodies:
//
//	Submit: {"task_id": "...", "input": {...}} -> task record
//	Get:    {"task_id": "..."}                 -> task record
const (
	TriageServiceName = "backlog.v1.TriageService"
	SubmitProcedure   = "/" + TriageServiceName + "/Submit"
	GetProcedure      = "/" + TriageServiceName + "/Get"
)

type rpcHandler struct {
	svc *service.Service
}

// NewTriageServiceHandler returns the mount path and handler of the Connect
// service. Submit runs synchronously.
func NewTriageServiceHandler(svc *service.Service, opts ...connect.HandlerOption) (string, http.Handler) {
	h := &rpcHandler{svc: svc}
	mux := http.NewServeMux()
	mux.Handle(SubmitProcedure, connect.NewUnaryHandler(SubmitProcedure, h.submit, opts...))
	mux.Handle(GetProcedure, connect.NewUnaryHandler(GetProcedure, h.get, opts...))
	return "/" + TriageServiceName + "/", mux
}

func (h *rpcHandler) submit(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()

	input := fields["input"].GetStructValue()
	if input == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("input is required"))
	}

	final, err := h.svc.Submit(ctx, workflows.Submission{
		TaskID: fields["task_id"].GetStringValue(),
		Input:  input.AsMap(),
	})
	if err != nil {
		return nil, connectError(err)
	}

	msg, err := recordToStruct(store.NewRecord(final, final.Trace(), time.Now()))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func (h *rpcHandler) get(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id := req.Msg.GetFields()["task_id"].GetStringValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("task_id is required"))
	}

	rec, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, connectError(err)
	}

	msg, err := recordToStruct(rec)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

func connectError(err error) *connect.Error {
	switch status, _ := classify(err); status {
	case http.StatusBadRequest:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case http.StatusNotFound:
		return connect.NewError(connect.CodeNotFound, err)
	case http.StatusConflict:
		return connect.NewError(connect.CodeAlreadyExists, err)
	case http.StatusServiceUnavailable:
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func recordToStruct(rec store.Record) (*structpb.Struct, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return structpb.NewStruct(m)
}

func structToRecord(msg *structpb.Struct) (store.Record, error) {
	data, err := json.Marshal(msg.AsMap())
	if err != nil {
		return store.Record{}, fmt.Errorf("decode record: %w", err)
	}
	var rec store.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return store.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// TriageClient calls a remote TriageService.
type TriageClient struct {
	submit *connect.Client[structpb.Struct, structpb.Struct]
	get    *connect.Client[structpb.Struct, structpb.Struct]
}

// NewTriageClient creates a client for the service at baseURL, for example
// "http://localhost:8080".
func NewTriageClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *TriageClient {
	return &TriageClient{
		submit: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+SubmitProcedure, opts...),
		get:    connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+GetProcedure, opts...),
	}
}

// Submit runs sub on the server and returns the finished record.
func (c *TriageClient) Submit(ctx context.Context, sub workflows.Submission) (store.Record, error) {
	input, err := structpb.NewStruct(sub.Input)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode input: %w", err)
	}
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"input": structpb.NewStructValue(input),
	}}
	if sub.TaskID != "" {
		req.Fields["task_id"] = structpb.NewStringValue(sub.TaskID)
	}

	resp, err := c.submit.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return store.Record{}, err
	}
	return structToRecord(resp.Msg)
}

// Get fetches the record of taskID.
func (c *TriageClient) Get(ctx context.Context, taskID string) (store.Record, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"task_id": structpb.NewStringValue(taskID),
	}}
	resp, err := c.get.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return store.Record{}, err
	}
	return structToRecord(resp.Msg)
}
