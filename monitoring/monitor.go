// Package monitoring serves a live view of an attach session over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/idgen"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/monitoring/web"
	"github.com/sarchlab/memsync/timing"
)

// Monitor turns an attach session into a server that allows inspecting the
// bound records and controlling the tick loop.
type Monitor struct {
	driver     *timing.Driver
	group      *timing.Group
	targetPID  int
	portNumber int

	bindersLock sync.Mutex
	binders     []*binder.Binder

	reportLock sync.Mutex
	lastReport *timing.Report

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterDriver registers the driver of the session. Its group is
// registered too. It must be called before the driver runs.
func (m *Monitor) RegisterDriver(d *timing.Driver) {
	m.driver = d
	m.group = d.Group()

	d.OnReport(m.recordReport)
}

// RegisterGroup registers a group that is ticked by hand.
func (m *Monitor) RegisterGroup(g *timing.Group) {
	m.group = g
}

// RegisterTarget registers the process id of the target.
func (m *Monitor) RegisterTarget(pid int) {
	m.targetPID = pid
}

// RegisterBinder registers a binder to be inspected.
func (m *Monitor) RegisterBinder(b *binder.Binder) {
	m.bindersLock.Lock()
	defer m.bindersLock.Unlock()

	m.binders = append(m.binders, b)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        idgen.SessionID(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of all monitor routes.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.continueTicking)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/tick", m.tick)
	r.HandleFunc("/api/report", m.report)
	r.HandleFunc("/api/list_binders", m.listBinders)
	r.HandleFunc("/api/binder/{name}", m.binderDetails)
	r.HandleFunc("/api/snapshot/{name}", m.binderSnapshot)
	r.HandleFunc("/api/field/{json}", m.fieldDetails)
	r.HandleFunc("/api/value/{json}", m.readValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/target", m.targetResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring memsync with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) recordReport(rep timing.Report) {
	m.reportLock.Lock()
	defer m.reportLock.Unlock()

	m.lastReport = &rep
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	if m.driver == nil {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	m.driver.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueTicking(w http.ResponseWriter, _ *http.Request) {
	if m.driver == nil {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	m.driver.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

type nowRsp struct {
	Now    uint64 `json:"now"`
	Paused bool   `json:"paused"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	rsp := nowRsp{}
	if m.group != nil {
		rsp.Now = m.group.Now()
	}

	if m.driver != nil {
		rsp.Paused = m.driver.Paused()
	}

	writeJSON(w, rsp)
}

type faultRsp struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type reportRsp struct {
	Tick     uint64     `json:"tick"`
	Changed  []string   `json:"changed"`
	Faults   []faultRsp `json:"faults"`
	Dropped  []string   `json:"dropped"`
	Disposed []string   `json:"disposed"`
}

func toReportRsp(rep timing.Report) reportRsp {
	rsp := reportRsp{
		Tick:     rep.Tick,
		Changed:  append([]string{}, rep.Changed...),
		Faults:   []faultRsp{},
		Dropped:  append([]string{}, rep.Dropped...),
		Disposed: append([]string{}, rep.Disposed...),
	}

	for _, f := range rep.Faults {
		rsp.Faults = append(rsp.Faults, faultRsp{Path: f.Path, Error: f.Err.Error()})
	}

	return rsp
}

// tick advances the group by one tick. It is refused while a driver is
// running and not paused.
func (m *Monitor) tick(w http.ResponseWriter, _ *http.Request) {
	if m.group == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if m.driver != nil && m.driver.Running() && !m.driver.Paused() {
		w.WriteHeader(http.StatusConflict)
		_, err := w.Write([]byte("Driver is running"))
		dieOnErr(err)

		return
	}

	rep := m.group.Tick()
	m.recordReport(rep)

	writeJSON(w, toReportRsp(rep))
}

func (m *Monitor) report(w http.ResponseWriter, _ *http.Request) {
	m.reportLock.Lock()
	rep := m.lastReport
	m.reportLock.Unlock()

	if rep == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, toReportRsp(*rep))
}

func (m *Monitor) liveBinders() []*binder.Binder {
	m.bindersLock.Lock()
	defer m.bindersLock.Unlock()

	live := make([]*binder.Binder, 0, len(m.binders))
	for _, b := range m.binders {
		if !b.Disposed() {
			live = append(live, b)
		}
	}

	return live
}

func (m *Monitor) listBinders(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	for _, b := range m.liveBinders() {
		names = append(names, b.Name())
	}

	writeJSON(w, names)
}

type fieldDetail struct {
	Path   string
	Kind   string
	Offset uint64
	Width  int
	State  string
	Faults int
	Value  string
}

type binderDetail struct {
	Name   string
	Layout string
	Base   string
	Fields []fieldDetail
}

func detailOf(b *binder.Binder) *binderDetail {
	d := &binderDetail{
		Name:   b.Name(),
		Layout: b.Layout().Name(),
	}

	if base, err := b.Base(); err != nil {
		d.Base = err.Error()
	} else {
		d.Base = base.String()
	}

	for _, path := range b.Paths() {
		c, err := b.Field(path)
		if err != nil {
			continue
		}

		f := c.Field()
		d.Fields = append(d.Fields, fieldDetail{
			Path:   path,
			Kind:   f.Kind.String(),
			Offset: f.Offset,
			Width:  f.Width,
			State:  c.State().String(),
			Faults: c.Faults(),
			Value:  fmt.Sprint(c.Value()),
		})
	}

	return d
}

func (m *Monitor) binderDetails(w http.ResponseWriter, r *http.Request) {
	b := m.findBinderOr404(w, mux.Vars(r)["name"])
	if b == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(detailOf(b))
	serializer.SetMaxDepth(3)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) binderSnapshot(w http.ResponseWriter, r *http.Request) {
	b := m.findBinderOr404(w, mux.Vars(r)["name"])
	if b == nil {
		return
	}

	writeJSON(w, detailOf(b))
}

type fieldReq struct {
	BinderName string `json:"binder_name,omitempty"`
	FieldName  string `json:"field_name,omitempty"`
}

func (m *Monitor) parseFieldReq(w http.ResponseWriter, r *http.Request) (fieldReq, bool) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return req, false
	}

	return req, true
}

func (m *Monitor) fieldDetails(w http.ResponseWriter, r *http.Request) {
	req, ok := m.parseFieldReq(w, r)
	if !ok {
		return
	}

	b := m.findBinderOr404(w, req.BinderName)
	if b == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(detailOf(b))
	serializer.SetMaxDepth(1)

	err := serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type valueRsp struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
	Text  string `json:"text"`
}

// readValue reads a field from the target right now, bypassing the cache.
func (m *Monitor) readValue(w http.ResponseWriter, r *http.Request) {
	req, ok := m.parseFieldReq(w, r)
	if !ok {
		return
	}

	b := m.findBinderOr404(w, req.BinderName)
	if b == nil {
		return
	}

	c, err := b.Field(req.FieldName)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	v, err := c.Read()
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	rsp := valueRsp{Path: req.FieldName, Value: v, Text: fmt.Sprint(v)}
	if e, ok := v.(layout.EnumValue); ok {
		rsp.Value = e.Raw
	}

	writeJSON(w, rsp)
}

func (m *Monitor) findBinderOr404(w http.ResponseWriter, name string) *binder.Binder {
	for _, b := range m.liveBinders() {
		if b.Name() == name {
			return b
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Binder not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]*ProgressBar, len(m.progressBars))
	copy(bars, m.progressBars)
	m.progressBarsLock.Unlock()

	snapshots := make([]ProgressSnapshot, 0, len(bars))
	for _, b := range bars {
		snapshots = append(snapshots, b.Snapshot())
	}

	writeJSON(w, snapshots)
}

type resourceRsp struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name,omitempty"`
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func processResources(pid int) (resourceRsp, error) {
	rsp := resourceRsp{PID: pid}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return rsp, err
	}

	rsp.Name, _ = p.Name()

	rsp.CPUPercent, err = p.CPUPercent()
	if err != nil {
		return rsp, err
	}

	memorySize, err := p.MemoryInfo()
	if err != nil {
		return rsp, err
	}

	rsp.MemorySize = memorySize.RSS

	return rsp, nil
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	rsp, err := processResources(os.Getpid())
	dieOnErr(err)

	writeJSON(w, rsp)
}

func (m *Monitor) targetResources(w http.ResponseWriter, _ *http.Request) {
	if m.targetPID == 0 {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No target process"))
		dieOnErr(err)

		return
	}

	rsp, err := processResources(m.targetPID)
	if err != nil {
		w.WriteHeader(http.StatusGone)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
