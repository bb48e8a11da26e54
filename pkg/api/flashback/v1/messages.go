package flashbackv1

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Commands accepted by Invoke.
const (
	CmdStartScan         = "start_scan"
	CmdGetResultsPage    = "get_results_page"
	CmdGetCurrentProject = "get_current_project"
	CmdSetCurrentProject = "set_current_project"
	CmdGetProjectByName  = "get_project_by_name"
	CmdCreateProject     = "create_project"
	CmdDeleteProject     = "delete_project"
	CmdListProjectsPaged = "list_projects_paged"
	CmdGetScanSummary    = "get_scan_summary"
	CmdDaemonStatus      = "daemon_status"
	CmdShutdown          = "shutdown"
)

// Event channels served by Subscribe.
const (
	EventScanLog      = "scan-log"
	EventScanProgress = "scan-progress"
	EventScanDone     = "scan-done"
)

// Request field names. These are transport fields, not command arguments,
// and do not drift with the argument convention.
const (
	FieldCommand   = "command"
	FieldArgs      = "args"
	FieldEvent     = "event"
	FieldProjectID = "projectId"
)

// HeaderSubscribed is the response header a Subscribe stream sends once
// the subscription is registered.
const HeaderSubscribed = "flashback-subscribed"

// ErrMissingCommand is returned for an Invoke request without a command.
var ErrMissingCommand = errors.New("request has no command")

// NewInvokeRequest builds the Invoke request for command with args.
// Args may hold any JSON-encodable values.
func NewInvokeRequest(command string, args map[string]any) (*structpb.Struct, error) {
	if command == "" {
		return nil, ErrMissingCommand
	}
	if args == nil {
		args = map[string]any{}
	}
	argStruct, err := ToStruct(args)
	if err != nil {
		return nil, fmt.Errorf("encoding args for %s: %w", command, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldCommand: structpb.NewStringValue(command),
		FieldArgs:    structpb.NewStructValue(argStruct),
	}}, nil
}

// ParseInvokeRequest splits an Invoke request into command and args.
func ParseInvokeRequest(req *structpb.Struct) (string, map[string]any, error) {
	command := req.GetFields()[FieldCommand].GetStringValue()
	if command == "" {
		return "", nil, ErrMissingCommand
	}
	args := req.GetFields()[FieldArgs].GetStructValue().AsMap()
	if args == nil {
		args = map[string]any{}
	}
	return command, args, nil
}

// NewSubscribeRequest builds the Subscribe request for one event channel.
func NewSubscribeRequest(event, projectID string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldEvent:     structpb.NewStringValue(event),
		FieldProjectID: structpb.NewStringValue(projectID),
	}}
}

// ParseSubscribeRequest returns the event and project of a Subscribe request.
func ParseSubscribeRequest(req *structpb.Struct) (event, projectID string) {
	fields := req.GetFields()
	return fields[FieldEvent].GetStringValue(), fields[FieldProjectID].GetStringValue()
}

// ToStruct encodes v, which must marshal to a JSON object, as a Struct.
// Going through JSON lets callers pass typed structs and []string values
// that structpb.NewStruct rejects.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToValue encodes any JSON-encodable v as a Value. Nil becomes null.
func ToValue(v any) (*structpb.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Value{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode unmarshals a Struct or Value into out via JSON.
func Decode(msg proto.Message, out any) error {
	data, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// IsNull reports whether v is absent or an explicit null.
func IsNull(v *structpb.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok || v.GetKind() == nil
}
