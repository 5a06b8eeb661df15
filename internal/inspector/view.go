package inspector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/salesforce"
	"quickloginas-mcp-server/internal/sfapi"
)

// State of a View.
type State string

const (
	StateLoading State = "loading"
	StateViewing State = "viewing"
	StateEditing State = "editing"
	StateError   State = "error"
)

// SessionSource resolves the session the inspector uses for each API call.
type SessionSource interface {
	ResolveSession(ctx context.Context, storeID, sfHost string) (*salesforce.Session, error)
}

// API is the REST surface the inspector calls.
type API interface {
	GetRecord(ctx context.Context, sobject, id string) (map[string]interface{}, error)
	Describe(ctx context.Context, sobject string) (*sfapi.DescribeResult, error)
	UpdateRecord(ctx context.Context, sobject, id string, fields map[string]interface{}) error
	Query(ctx context.Context, soql string) (*sfapi.QueryResult, error)
	ToolingQuery(ctx context.Context, soql string) (*sfapi.QueryResult, error)
}

// APIFactory builds an API client for a resolved session.
type APIFactory func(session *salesforce.Session) API

// NewAPIFactory returns a factory producing resty-backed clients.
func NewAPIFactory(opts sfapi.Options) APIFactory {
	return func(s *salesforce.Session) API {
		return sfapi.NewClient(s.Origin(), s.Credential, opts)
	}
}

// FactSink receives activity facts.
type FactSink interface {
	AddFacts(ctx context.Context, facts []mangle.Fact) error
}

// NoticeLevel classifies a transient notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Snapshot is the rendered state of a View.
type Snapshot struct {
	ViewID  string `json:"viewId"`
	State   State  `json:"state"`
	Title   string `json:"title"`
	Params  Params `json:"params"`
	Error   string `json:"error,omitempty"`
	Filter  string `json:"filter,omitempty"`
	Saving  bool   `json:"saving,omitempty"`
	Rows    []Row  `json:"rows"`
	Total   int    `json:"total"`
	Visible int    `json:"visible"`
}

// View is one open Record Inspector. All methods are safe for concurrent use.
type View struct {
	id         string
	params     Params
	sessions   SessionSource
	newAPI     APIFactory
	sink       FactSink
	launchBase string

	mu       sync.Mutex
	state    State
	err      error
	fields   map[string]FieldMeta
	names    []string
	original map[string]interface{}
	inputs   map[string]interface{}
	filter   string
	saving   bool
	notices  []Notice
}

func newView(id string, params Params, sessions SessionSource, newAPI APIFactory, sink FactSink, launchBase string) *View {
	return &View{
		id:         id,
		params:     params,
		sessions:   sessions,
		newAPI:     newAPI,
		sink:       sink,
		launchBase: launchBase,
		state:      StateLoading,
	}
}

func (v *View) ID() string { return v.id }

func (v *View) Params() Params { return v.params }

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the load failure of a view in Error state.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Load resolves the session and fetches the record and its describe. The
// view ends in Viewing on success and Error otherwise. It is refused while
// a save is in flight.
func (v *View) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.saving {
		v.mu.Unlock()
		return ErrSaveInProgress
	}
	v.state = StateLoading
	v.err = nil
	v.mu.Unlock()

	if err := v.params.Validate(); err != nil {
		return v.fail(err)
	}

	session, err := v.sessions.ResolveSession(ctx, v.params.StoreID, v.params.SFHost)
	if err != nil {
		if errors.Is(err, salesforce.ErrNoSession) || errors.Is(err, salesforce.ErrNotSalesforceDomain) {
			return v.fail(fmt.Errorf("unable to get Salesforce session, check that you are logged in: %w", err))
		}
		return v.fail(err)
	}
	api := v.newAPI(session)

	var (
		wg        sync.WaitGroup
		record    map[string]interface{}
		describe  *sfapi.DescribeResult
		recErr    error
		descErr   error
		setupURLs map[string]string
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		record, recErr = api.GetRecord(ctx, v.params.SObject, v.params.RecordID)
	}()
	go func() {
		defer wg.Done()
		describe, descErr = api.Describe(ctx, v.params.SObject)
	}()
	go func() {
		defer wg.Done()
		setupURLs = v.fieldSetupURLs(ctx, api)
	}()
	wg.Wait()

	if recErr != nil || descErr != nil {
		ferr := &FetchFailedError{
			RecordStatus:   callStatus(recErr),
			DescribeStatus: callStatus(descErr),
			RecordErr:      recErr,
			DescribeErr:    descErr,
		}
		v.emit(ctx, mangle.Fact{
			Predicate: "fetch_failed",
			Args:      []interface{}{v.params.SObject, v.params.RecordID, ferr.RecordStatus, ferr.DescribeStatus},
		})
		return v.fail(ferr)
	}

	fields := make(map[string]FieldMeta, len(describe.Fields))
	for _, f := range describe.Fields {
		meta := metaFromDescribe(f)
		meta.SetupURL = setupURLs[f.Name]
		fields[f.Name] = meta
	}

	v.mu.Lock()
	v.fields = fields
	v.original = record
	v.names = sortedFieldNames(record)
	v.inputs = nil
	v.state = StateViewing
	count := len(v.names)
	v.mu.Unlock()

	log.Printf("[inspector:%s] loaded %s with %d fields", v.id, v.params.Title(), count)
	v.emit(ctx, mangle.Fact{
		Predicate: "record_loaded",
		Args:      []interface{}{v.id, v.params.SObject, v.params.RecordID, count},
	})
	return nil
}

func (v *View) fail(err error) error {
	v.mu.Lock()
	v.state = StateError
	v.err = err
	v.mu.Unlock()
	log.Printf("[inspector:%s] load failed: %v", v.id, err)
	return err
}

// fieldSetupURLs maps field API names to their Setup page. Failures only
// cost the links.
func (v *View) fieldSetupURLs(ctx context.Context, api API) map[string]string {
	entity, err := api.Query(ctx, fmt.Sprintf(
		"SELECT DurableId FROM EntityDefinition WHERE QualifiedApiName='%s'", v.params.SObject))
	if err != nil {
		log.Printf("[inspector:%s] entity definition lookup failed: %v", v.id, err)
		return nil
	}
	durableID := entity.StringField(0, "DurableId")
	if !durableIDPattern.MatchString(durableID) {
		return nil
	}

	defs, err := api.ToolingQuery(ctx, fmt.Sprintf(
		"SELECT DurableId, QualifiedApiName FROM FieldDefinition WHERE EntityDefinitionId='%s'", durableID))
	if err != nil {
		log.Printf("[inspector:%s] field definition lookup failed: %v", v.id, err)
		return nil
	}

	origin := v.params.Origin()
	out := make(map[string]string, len(defs.Records))
	for i := range defs.Records {
		name := defs.StringField(i, "QualifiedApiName")
		id := defs.StringField(i, "DurableId")
		if name == "" || id == "" {
			continue
		}
		if _, after, ok := strings.Cut(id, "."); ok {
			id = after
		}
		out[name] = fmt.Sprintf("%s/lightning/setup/ObjectManager/%s/FieldsAndRelationships/%s/view",
			origin, v.params.SObject, id)
	}
	return out
}

// Snapshot renders the view. Rows hidden by the filter are omitted.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	snap := Snapshot{
		ViewID: v.id,
		State:  v.state,
		Title:  v.params.Title(),
		Params: v.params,
		Filter: v.filter,
		Saving: v.saving,
		Rows:   []Row{},
		Total:  len(v.names),
	}
	if v.err != nil {
		snap.Error = v.err.Error()
	}

	term := strings.ToLower(strings.TrimSpace(v.filter))
	for _, name := range v.names {
		row := v.row(name)
		if term != "" && !strings.Contains(row.text(), term) {
			continue
		}
		snap.Rows = append(snap.Rows, row)
	}
	snap.Visible = len(snap.Rows)
	return snap
}

// Rows returns the visible rows.
func (v *View) Rows() []Row {
	return v.Snapshot().Rows
}

// row renders one field; v.mu must be held.
func (v *View) row(name string) Row {
	meta, ok := v.fields[name]
	if !ok {
		meta = placeholderMeta(name)
	}
	value := v.original[name]
	display, isNull := displayValue(value)
	row := Row{FieldMeta: meta, Value: value, Display: display, IsNull: isNull}

	if s, ok := value.(string); ok && s != "" && meta.Type == "reference" && len(meta.ReferenceTo) > 0 {
		row.Link = LaunchURL(v.launchBase, Params{
			RecordID: s,
			SObject:  meta.ReferenceTo[0],
			SFHost:   v.params.SFHost,
			StoreID:  v.params.StoreID,
		})
	}

	if v.state == StateEditing && meta.Updateable {
		row.Control = &Control{Kind: controlKind(meta.Type), Value: v.inputs[name]}
	}
	return row
}

// BeginEdit switches Viewing to Editing and seeds the controls from the snapshot.
func (v *View) BeginEdit() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateViewing {
		return fmt.Errorf("begin edit in %s: %w", v.state, ErrInvalidState)
	}

	v.inputs = make(map[string]interface{})
	for _, name := range v.names {
		meta, ok := v.fields[name]
		if !ok || !meta.Updateable {
			continue
		}
		if controlKind(meta.Type) == ControlCheckbox {
			b, _ := v.original[name].(bool)
			v.inputs[name] = b
			continue
		}
		v.inputs[name] = inputText(v.original[name])
	}
	v.state = StateEditing
	return nil
}

// Cancel discards edits and returns to Viewing.
func (v *View) Cancel() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateEditing {
		return fmt.Errorf("cancel in %s: %w", v.state, ErrInvalidState)
	}
	if v.saving {
		return ErrSaveInProgress
	}
	v.inputs = nil
	v.state = StateViewing
	return nil
}

// SetInput stores a control value. Checkboxes take a bool (or its text form),
// other controls take text; nil clears the control.
func (v *View) SetInput(field string, value interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateEditing {
		return fmt.Errorf("set %s in %s: %w", field, v.state, ErrInvalidState)
	}
	if v.saving {
		return ErrSaveInProgress
	}
	current, ok := v.inputs[field]
	if !ok {
		return fmt.Errorf("%s: %w", field, ErrNotUpdateable)
	}

	if _, isBool := current.(bool); isBool {
		switch t := value.(type) {
		case bool:
			v.inputs[field] = t
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return fmt.Errorf("%s expects a boolean: %w", field, err)
			}
			v.inputs[field] = b
		case nil:
			v.inputs[field] = false
		default:
			return fmt.Errorf("%s expects a boolean, got %T", field, value)
		}
		return nil
	}
	v.inputs[field] = inputText(value)
	return nil
}

// Changes returns the fields whose control differs from the snapshot, with
// empty text submitted as null.
func (v *View) Changes() map[string]interface{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.diff()
}

func (v *View) diff() map[string]interface{} {
	changes := make(map[string]interface{})
	for name, in := range v.inputs {
		if s, ok := in.(string); ok && s == "" {
			in = nil
		}
		if sameValue(in, v.original[name]) {
			continue
		}
		changes[name] = in
	}
	return changes
}

func sameValue(in, orig interface{}) bool {
	switch t := in.(type) {
	case nil:
		return orig == nil || orig == ""
	case bool:
		b, _ := orig.(bool)
		return t == b
	case string:
		return orig != nil && t == inputText(orig)
	}
	return false
}

// SaveResult reports the fields a successful save submitted.
type SaveResult struct {
	Changed map[string]interface{} `json:"changed"`
}

// Save submits changed fields. With nothing changed it returns ErrNoChanges
// without a request and returns to Viewing. A rejected save keeps the view in
// Editing with all inputs intact.
func (v *View) Save(ctx context.Context) (*SaveResult, error) {
	v.mu.Lock()
	if v.state != StateEditing {
		v.mu.Unlock()
		return nil, fmt.Errorf("save in %s: %w", v.state, ErrInvalidState)
	}
	if v.saving {
		v.mu.Unlock()
		return nil, ErrSaveInProgress
	}
	changes := v.diff()
	if len(changes) == 0 {
		v.inputs = nil
		v.state = StateViewing
		v.notices = append(v.notices, Notice{Level: NoticeInfo, Message: "No fields were changed."})
		v.mu.Unlock()
		v.emit(ctx, mangle.Fact{Predicate: "save_skipped", Args: []interface{}{v.id}})
		return nil, ErrNoChanges
	}
	v.saving = true
	v.mu.Unlock()

	err := v.submit(ctx, changes)

	v.mu.Lock()
	v.saving = false
	if err != nil {
		msg := serverMessage(err)
		v.notices = append(v.notices, Notice{Level: NoticeError, Message: "Error saving: " + msg})
		v.mu.Unlock()
		log.Printf("[inspector:%s] save rejected: %s", v.id, msg)
		v.emit(ctx, mangle.Fact{Predicate: "save_rejected", Args: []interface{}{v.id, msg}})
		return nil, &SaveRejectedError{Message: msg, Err: err}
	}
	for name, value := range changes {
		v.original[name] = value
	}
	v.inputs = nil
	v.state = StateViewing
	v.notices = append(v.notices, Notice{Level: NoticeSuccess, Message: "Record updated successfully!"})
	v.mu.Unlock()

	log.Printf("[inspector:%s] saved %d field(s): %s", v.id, len(changes), strings.Join(sortedKeys(changes), ", "))
	v.emit(ctx, mangle.Fact{Predicate: "record_saved", Args: []interface{}{v.id, v.params.SObject, v.params.RecordID, len(changes)}})
	return &SaveResult{Changed: changes}, nil
}

func (v *View) submit(ctx context.Context, changes map[string]interface{}) error {
	session, err := v.sessions.ResolveSession(ctx, v.params.StoreID, v.params.SFHost)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	return v.newAPI(session).UpdateRecord(ctx, v.params.SObject, v.params.RecordID, changes)
}

// SetFilter sets the visible-row filter. It only affects rendering.
func (v *View) SetFilter(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = term
}

// Notices drains queued notices.
func (v *View) Notices() []Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := v.notices
	v.notices = nil
	return out
}

func (v *View) emit(ctx context.Context, f mangle.Fact) {
	if v.sink == nil {
		return
	}
	f.Timestamp = time.Now()
	if err := v.sink.AddFacts(ctx, []mangle.Fact{f}); err != nil {
		log.Printf("[inspector:%s] failed to record %s: %v", v.id, f.Predicate, err)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
