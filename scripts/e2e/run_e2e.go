// Package main runs end-to-end scenarios of the WhatsApp booking flow against a
// running API. Each scenario posts UltraMsg webhooks for a throwaway number and
// watches the conversation through the admin API.
//
// Usage:
//
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go              # runs all
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run scripts/e2e/run_e2e.go happy-path   # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	maxWaitSecs  = 45
	pollInterval = 2 * time.Second
)

var (
	apiBase string
	token   string
	client  = &http.Client{Timeout: 15 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T is a lightweight test context for a single scenario.
type T struct {
	passed int
	failed int
	name   string
	number string
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...interface{}) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

type conversation struct {
	ConversationID string            `json:"conversation_id"`
	Closed         bool              `json:"closed"`
	Muted          bool              `json:"muted"`
	Slots          map[string]string `json:"slots"`
	Missing        []string          `json:"missing"`
	History        []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
}

func (c conversation) assistantReplies() []string {
	var out []string
	for _, turn := range c.History {
		if turn.Role == "assistant" {
			out = append(out, turn.Content)
		}
	}
	return out
}

func adminToken(secret string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "e2e",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func adminRequest(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}

func reset(number string) error {
	resp, err := adminRequest(http.MethodDelete, "/admin/conversations/"+number)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("reset returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func sendWhatsApp(number, text string) error {
	ts := time.Now()
	payload := map[string]interface{}{
		"event_type": "message_received",
		"data": map[string]interface{}{
			"id":   fmt.Sprintf("e2e-%d", ts.UnixNano()),
			"from": number + "@c.us",
			"type": "chat",
			"body": text,
			"time": ts.Unix(),
		},
	}
	body, _ := json.Marshal(payload)
	resp, err := client.Post(apiBase+"/webhooks/ultramsg", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func getConversation(number string) (conversation, error) {
	resp, err := adminRequest(http.MethodGet, "/admin/conversations/"+number)
	if err != nil {
		return conversation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return conversation{}, fmt.Errorf("conversation lookup returned %d", resp.StatusCode)
	}
	var conv conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return conversation{}, err
	}
	return conv, nil
}

// waitForReplies waits until the conversation holds at least minCount assistant turns.
func waitForReplies(number string, minCount int) (conversation, error) {
	deadline := time.Now().Add(maxWaitSecs * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		conv, err := getConversation(number)
		if err != nil {
			continue
		}
		if len(conv.assistantReplies()) >= minCount {
			return conv, nil
		}
	}
	return conversation{}, fmt.Errorf("timed out waiting for %d replies after %ds", minCount, maxWaitSecs)
}

func say(t *T, text string, replies int) (conversation, bool) {
	fmt.Printf("  > %s\n", text)
	if err := sendWhatsApp(t.number, text); err != nil {
		t.fatalf("send: %v", err)
		return conversation{}, false
	}
	conv, err := waitForReplies(t.number, replies)
	if err != nil {
		t.fatalf("%v", err)
		return conversation{}, false
	}
	all := conv.assistantReplies()
	fmt.Printf("  < %s\n", all[len(all)-1])
	return conv, true
}

func scenarioHappyPath(t *T) {
	conv, ok := say(t, "motel, 8pm, pix", 1)
	if !ok {
		return
	}
	t.check("conversation closed", conv.Closed)
	t.check("time normalized to 20:00", conv.Slots["time"] == "20:00")
	t.check("payment captured", conv.Slots["payment"] == "pix")
	t.check("muted after closing", conv.Muted)
	t.check("closing message confirms", strings.Contains(strings.ToLower(conv.assistantReplies()[0]), "booked"))
}

func scenarioMultiTurn(t *T) {
	conv, ok := say(t, "hi there", 1)
	if !ok {
		return
	}
	t.check("nothing closed after greeting", !conv.Closed)

	conv, ok = say(t, "my place", 2)
	if !ok {
		return
	}
	t.check("place captured", conv.Slots["place"] != "")
	t.check("time still missing", containsSlot(conv.Missing, "time"))

	conv, ok = say(t, "22h, cash", 3)
	if !ok {
		return
	}
	t.check("conversation closed", conv.Closed)
	t.check("time normalized", conv.Slots["time"] == "22:00")
}

func scenarioAfterClose(t *T) {
	if _, ok := say(t, "motel 9pm pix", 1); !ok {
		return
	}
	if err := sendWhatsApp(t.number, "are you on your way?"); err != nil {
		t.fatalf("send: %v", err)
		return
	}
	time.Sleep(3 * pollInterval)
	conv, err := getConversation(t.number)
	if err != nil {
		t.fatalf("%v", err)
		return
	}
	t.check("no reply while muted", len(conv.assistantReplies()) == 1)
}

func containsSlot(slots []string, want string) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}

func main() {
	apiBase = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if apiBase == "" || secret == "" {
		fmt.Fprintln(os.Stderr, "ERROR: API_BASE_URL and ADMIN_JWT_SECRET required")
		os.Exit(1)
	}
	var err error
	if token, err = adminToken(secret); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR: sign admin token:", err)
		os.Exit(1)
	}

	scenarios := []scenario{
		{"happy-path", scenarioHappyPath},
		{"multi-turn", scenarioMultiTurn},
		{"after-close", scenarioAfterClose},
	}

	filter := ""
	if len(os.Args) > 1 {
		filter = os.Args[1]
	}

	totalPassed, totalFailed := 0, 0
	var results []string
	for i, s := range scenarios {
		if filter != "" && s.Name != filter {
			continue
		}
		fmt.Printf("\n========================================\n")
		fmt.Printf("SCENARIO: %s\n", s.Name)
		fmt.Printf("========================================\n")

		t := &T{name: s.Name, number: fmt.Sprintf("5500000%05d", i+1)}
		if err := reset(t.number); err != nil {
			t.fatalf("reset: %v", err)
		} else {
			s.Fn(t)
		}

		totalPassed += t.passed
		totalFailed += t.failed
		status := "ok  "
		if t.failed > 0 {
			status = "FAIL"
		}
		results = append(results, fmt.Sprintf("  %s %s (%d passed, %d failed)", status, s.Name, t.passed, t.failed))
	}

	fmt.Printf("\n========================================\n")
	fmt.Println("SUMMARY")
	fmt.Printf("========================================\n")
	for _, r := range results {
		fmt.Println(r)
	}
	fmt.Printf("\nTotal: %d passed, %d failed\n", totalPassed, totalFailed)
	if totalFailed > 0 {
		os.Exit(1)
	}
}
