package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	backendURL string
	employeeID string
	password   string
	patientID  string
	audioPath  string
	timeout    time.Duration
}

type client struct {
	base  string
	http  *http.Client
	token string
}

type apiError struct {
	Message string `json:"message"`
}

type handover struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	Transcription *string         `json:"transcription"`
	Report        json.RawMessage `json:"isbarReport"`
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "handover-client",
		Short:        "Smoke test a running handover server end to end",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.backendURL, "url", "http://localhost:8080", "Backend base URL")
	cmd.Flags().StringVar(&opts.employeeID, "employee-id", "SMOKE01", "Employee id to register and log in with")
	cmd.Flags().StringVar(&opts.password, "password", "Smoke12345", "Password for the smoke test account")
	cmd.Flags().StringVar(&opts.patientID, "patient", "P001", "External patient id (run `handover-server seed` first)")
	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "Audio file to upload; a short silent WAV is generated when empty")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "How long to wait for processing")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Nursing handover smoke test against", opts.backendURL)
	fmt.Println(strings.Repeat("=", 60))

	c := &client{base: strings.TrimRight(opts.backendURL, "/"), http: &http.Client{Timeout: 30 * time.Second}}

	if err := c.health(); err != nil {
		return err
	}
	if err := c.register(opts.employeeID, opts.password); err != nil {
		return err
	}
	if err := c.login(opts.employeeID, opts.password); err != nil {
		return err
	}

	patientID, err := c.patient(opts.patientID)
	if err != nil {
		return err
	}

	name, data, err := audioFile(opts.audioPath)
	if err != nil {
		return err
	}
	h, err := c.upload(patientID, name, data)
	if err != nil {
		return err
	}

	final, err := c.poll(h.ID, opts.timeout)
	if err != nil {
		return err
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	if final.Status != "complete" {
		fmt.Printf("✗ Handover %d ended in %s\n", final.ID, final.Status)
		return fmt.Errorf("handover %d failed", final.ID)
	}
	fmt.Printf("✓ Handover %d complete\n", final.ID)
	if final.Transcription != nil {
		fmt.Printf("  - Transcription: %s\n", *final.Transcription)
	}
	fmt.Printf("  - Report: %s\n", string(final.Report))
	return nil
}

func (c *client) health() error {
	fmt.Println("\n[TEST] /api/health")
	var body map[string]any
	if _, err := c.do(http.MethodGet, "/api/health", nil, "", &body); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Printf("✓ Health: %v\n", body["status"])
	return nil
}

func (c *client) register(employeeID, password string) error {
	fmt.Println("\n[TEST] /api/auth/register")
	payload, _ := json.Marshal(map[string]string{
		"employeeId": employeeID,
		"name":       "Smoke Test",
		"password":   password,
		"department": "QA",
	})

	status, err := c.do(http.MethodPost, "/api/auth/register", bytes.NewReader(payload), "application/json", nil)
	if err != nil && status == http.StatusBadRequest && strings.Contains(err.Error(), "already exists") {
		fmt.Println("⚠ Account already exists (this is OK)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Println("✓ Registered", employeeID)
	return nil
}

func (c *client) login(employeeID, password string) error {
	fmt.Println("\n[TEST] /api/auth/login")
	payload, _ := json.Marshal(map[string]string{"employeeId": employeeID, "password": password})

	var resp struct {
		Token string `json:"token"`
	}
	if _, err := c.do(http.MethodPost, "/api/auth/login", bytes.NewReader(payload), "application/json", &resp); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	c.token = resp.Token
	fmt.Println("✓ Logged in, token received")
	return nil
}

func (c *client) patient(externalID string) (int64, error) {
	fmt.Println("\n[TEST] /api/patients/external/" + externalID)
	var p struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if _, err := c.do(http.MethodGet, "/api/patients/external/"+externalID, nil, "", &p); err != nil {
		return 0, fmt.Errorf("patient lookup failed: %w", err)
	}
	fmt.Printf("✓ Patient %s: %s (id %d)\n", externalID, p.Name, p.ID)
	return p.ID, nil
}

func (c *client) upload(patientID int64, name string, data []byte) (*handover, error) {
	fmt.Println("\n[TEST] /api/handovers (upload)")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("patientId", fmt.Sprint(patientID))
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, name))
	h.Set("Content-Type", audioContentType(name))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var created handover
	if _, err := c.do(http.MethodPost, "/api/handovers", &buf, w.FormDataContentType(), &created); err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	fmt.Printf("✓ Uploaded %s (%d bytes): handover %d is %s\n", name, len(data), created.ID, created.Status)
	return &created, nil
}

func (c *client) poll(id int64, timeout time.Duration) (*handover, error) {
	fmt.Printf("\n[TEST] polling /api/handovers/%d\n", id)
	deadline := time.Now().Add(timeout)
	last := ""
	for {
		var h handover
		if _, err := c.do(http.MethodGet, fmt.Sprintf("/api/handovers/%d", id), nil, "", &h); err != nil {
			return nil, fmt.Errorf("poll failed: %w", err)
		}
		if h.Status != last {
			fmt.Printf("  - status: %s\n", h.Status)
			last = h.Status
		}
		if h.Status == "complete" || h.Status == "error" {
			return &h, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("handover %d still %s after %s", id, h.Status, timeout)
		}
		time.Sleep(2 * time.Second)
	}
}

// do sends one request and decodes a JSON body into out. Non-2xx responses
// return the status and the server's message as an error.
func (c *client) do(method, path string, body io.Reader, contentType string, out any) (int, error) {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func audioFile(path string) (string, []byte, error) {
	if path == "" {
		fmt.Println("\n[INFO] Generating a one second silent WAV")
		return "smoke-test.wav", silentWAV(16000, time.Second), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read audio: %w", err)
	}
	return filepath.Base(path), data, nil
}

func audioContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return "audio/wav"
	}
}

// silentWAV renders 16-bit mono PCM silence.
func silentWAV(sampleRate int, d time.Duration) []byte {
	samples := int(d.Seconds() * float64(sampleRate))
	dataLen := samples * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}
