package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// xplane12Datarefs lists the Web API dataref names in subscription-index
// order. The order matches the dr* constants so both X-Plane sources can
// share applyDatarefValue. Array datarefs are named without an element
// suffix; the API delivers the whole array and we take element zero.
var xplane12Datarefs = []string{
	"sim/flightmodel/position/latitude",
	"sim/flightmodel/position/longitude",
	"sim/flightmodel/position/elevation",
	"sim/flightmodel/position/y_agl",
	"sim/flightmodel/position/groundspeed",
	"sim/flightmodel/position/indicated_airspeed",
	"sim/flightmodel/position/vh_ind",
	"sim/flightmodel/position/psi",
	"sim/flightmodel/failures/onground_any",
	"sim/flightmodel/engine/ENGN_running",
	"sim/time/paused",
	"sim/time/total_flight_time_sec",
	"sim/flightmodel/weight/m_fuel_total",
	"sim/cockpit2/gauges/indicators/radio_altimeter_height_ft_pilot",
}

type xp12DatarefInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ValueType string `json:"value_type"`
}

type xp12DatarefsResponse struct {
	Data []xp12DatarefInfo `json:"data"`
}

type xp12SubRef struct {
	ID int64 `json:"id"`
}

type xp12SubscribeParams struct {
	Datarefs []xp12SubRef `json:"datarefs"`
}

type xp12SubscribeRequest struct {
	ReqID  int64               `json:"req_id"`
	Type   string              `json:"type"`
	Params xp12SubscribeParams `json:"params"`
}

type xp12Message struct {
	ReqID        int64          `json:"req_id,omitempty"`
	Type         string         `json:"type"`
	Data         map[string]any `json:"data,omitempty"`
	Success      bool           `json:"success,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// XPlane12Source reads the signal set over the X-Plane 12 Web API:
// dataref ids are resolved over REST, then values stream in over a
// websocket subscription. Covers the default installs where the legacy
// UDP dataref interface is disabled.
type XPlane12Source struct {
	host string
	port int

	mu           sync.Mutex
	conn         *websocket.Conn
	indexByID    map[int64]int
	sig          SignalSnapshot
	lastReceived time.Time
	lastGSAt     time.Time
	stop         chan struct{}
}

func NewXPlane12Source(host string, port int) SignalSource {
	return &XPlane12Source{host: host, port: port}
}

func (x *XPlane12Source) Name() string {
	return "xplane12"
}

func (x *XPlane12Source) baseURL() string {
	return fmt.Sprintf("http://%s/api/v2", net.JoinHostPort(x.host, strconv.Itoa(x.port)))
}

// Connect resolves the dataref ids, opens the websocket and subscribes
// to value updates.
func (x *XPlane12Source) Connect() error {
	ids, err := x.resolveDatarefIDs()
	if err != nil {
		return fmt.Errorf("resolving dataref ids: %w", err)
	}

	wsURL := url.URL{Scheme: "ws", Host: net.JoinHostPort(x.host, strconv.Itoa(x.port)), Path: "/api/v2"}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing X-Plane websocket: %w", err)
	}

	req := xp12SubscribeRequest{
		ReqID: time.Now().UnixMilli(),
		Type:  "dataref_subscribe_values",
	}
	indexByID := make(map[int64]int, len(ids))
	for idx, id := range ids {
		req.Params.Datarefs = append(req.Params.Datarefs, xp12SubRef{ID: id})
		indexByID[id] = idx
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("subscribing to datarefs: %w", err)
	}

	x.mu.Lock()
	x.conn = conn
	x.indexByID = indexByID
	x.sig = SignalSnapshot{}
	x.lastGSAt = time.Time{}
	x.stop = make(chan struct{})
	x.mu.Unlock()

	go x.readLoop(conn, x.stop)

	slog.Info("connected to X-Plane Web API", "host", x.host, "port", x.port, "datarefs", len(ids))
	return nil
}

func (x *XPlane12Source) Disconnect() error {
	x.mu.Lock()
	conn := x.conn
	stop := x.stop
	x.conn = nil
	x.stop = nil
	x.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

func (x *XPlane12Source) Snapshot() SignalSnapshot {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sig.sanitized()
}

// LastReceived reports when a value update last arrived, for staleness
// checks upstream.
func (x *XPlane12Source) LastReceived() time.Time {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastReceived
}

// resolveDatarefIDs looks up the numeric id of every subscribed dataref
// through the REST half of the API. All names must resolve; a missing
// one means the simulator build does not expose the signal set we need.
func (x *XPlane12Source) resolveDatarefIDs() ([]int64, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	ids := make([]int64, len(xplane12Datarefs))
	for idx, name := range xplane12Datarefs {
		reqURL := fmt.Sprintf("%s/datarefs?filter[name]=%s", x.baseURL(), url.QueryEscape(name))
		req, err := http.NewRequest(http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("querying dataref %s: %w", name, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("querying dataref %s: status %d", name, resp.StatusCode)
		}

		var parsed xp12DatarefsResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding dataref response for %s: %w", name, err)
		}
		if len(parsed.Data) == 0 {
			return nil, fmt.Errorf("dataref not found: %s", name)
		}
		ids[idx] = parsed.Data[0].ID
	}
	return ids, nil
}

func (x *XPlane12Source) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
			default:
				slog.Warn("X-Plane websocket read failed", "error", err)
			}
			return
		}

		var msg xp12Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("unparseable X-Plane websocket message", "error", err)
			continue
		}

		switch msg.Type {
		case "dataref_update_values":
			x.applyUpdate(msg.Data)
		case "result":
			if !msg.Success {
				slog.Warn("X-Plane subscription rejected",
					"req_id", msg.ReqID, "code", msg.ErrorCode, "message", msg.ErrorMessage)
			}
		}
	}
}

// applyUpdate folds a dataref_update_values payload into the snapshot.
// Keys are dataref ids as strings; values are numbers, or arrays for
// array datarefs, of which we want element zero.
func (x *XPlane12Source) applyUpdate(data map[string]any) {
	now := time.Now()

	x.mu.Lock()
	defer x.mu.Unlock()
	for key, raw := range data {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			continue
		}
		idx, ok := x.indexByID[id]
		if !ok {
			continue
		}
		val, ok := numericValue(raw)
		if !ok {
			continue
		}
		applyDatarefValue(&x.sig, &x.lastGSAt, idx, val, now)
	}
	x.lastReceived = now
}

// numericValue coerces a websocket JSON value to float64, unwrapping
// single-element reads of array datarefs.
func numericValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []any:
		if len(v) == 0 {
			return 0, false
		}
		return numericValue(v[0])
	default:
		return 0, false
	}
}
