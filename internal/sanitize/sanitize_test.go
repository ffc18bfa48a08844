package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var dangerous = []string{
	"<script>alert(1)</script>",
	"<SCRIPT src=//evil.example></SCRIPT>",
	"< script >x",
	"javascript:alert(1)",
	"JavaScript :void(0)",
	"vbscript:msgbox",
	"data:text/html;base64,PHNjcmlwdD4=",
	"data:,hello",
	"data:text/html",
	"DATA:image/svg+xml",
	"file:///etc/passwd",
	"file:C:/Windows/win.ini",
	"file:etc/passwd",
	`<img src=x onerror="alert(1)">`,
	"<div onclick = 'x()'>",
}

func TestValidateForDisplay_RejectsBlocklist(t *testing.T) {
	for _, payload := range dangerous {
		wrapped := "Materials imported " + payload + " at site 4"
		assert.False(t, ValidateForDisplay(Notification{Title: wrapped}), "title %q", payload)
		assert.False(t, ValidateForDisplay(Notification{Body: wrapped}), "body %q", payload)
		assert.False(t, ValidateForDisplay(Notification{Data: map[string]any{"url": wrapped}}), "data %q", payload)
		assert.False(t, ValidateForDisplay(Notification{Data: map[string]any{
			"nested": []any{map[string]any{"deep": wrapped}},
		}}), "nested data %q", payload)
	}
}

func TestValidateForDisplay_AllowsBenign(t *testing.T) {
	n := Notification{
		Title: "Materials Imported by Sam",
		Body:  "Sam imported 40 bags of cement. Attached file: invoice.pdf, data: 5 pallets",
		Data: map[string]any{
			"type":      "material_imported",
			"url":       "/projects/p1",
			"count":     float64(40),
			"confirmed": true,
		},
	}
	assert.True(t, ValidateForDisplay(n))
	assert.True(t, ValidateForDisplay(Notification{}))
}

func TestValidateForDisplay_UnknownShapeFailsClosed(t *testing.T) {
	n := Notification{Title: "ok", Data: map[string]any{"fn": func() {}}}
	assert.False(t, ValidateForDisplay(n))
}

func TestSanitizeForNavigation(t *testing.T) {
	allowed := []string{
		"/projects/p1",
		"/projects/p1/sections/s2?tab=materials",
		"activity-feed",
		"Dashboard",
	}
	for _, target := range allowed {
		assert.True(t, SanitizeForNavigation(target), target)
	}

	rejected := append([]string{
		"",
		"   ",
		"https://evil.example/phish",
		"//evil.example",
		"/projects/<b>",
		"projects/p1",
		"route name",
		`/\evil`,
		"/redirect?to=javascript:alert(1)",
	}, dangerous...)
	for _, target := range rejected {
		assert.False(t, SanitizeForNavigation(target), target)
	}
}

func TestSanitizeData(t *testing.T) {
	in := map[string]any{
		"type":     "material_imported",
		"id":       42,
		"url":      "javascript:alert(1)",
		"title":    "Hi <script>alert(1)</script>there",
		"message":  `<img src=x onerror=alert(1)>`,
		"password": "secret",
		"nested":   map[string]any{"a": "b"},
	}
	out := SanitizeData(in)

	assert.Equal(t, "material_imported", out["type"])
	assert.Equal(t, "42", out["id"])
	assert.Equal(t, "alert(1)", out["url"])
	assert.Equal(t, "Hi there", out["title"])
	assert.NotContains(t, out["message"], "onerror")
	assert.NotContains(t, out, "password")
	assert.NotContains(t, out, "nested")
	assert.Len(t, out, 5)
}

func TestStripDangerous_Spliced(t *testing.T) {
	assert.Equal(t, "alert(1)", StripDangerous("javajavascript:script:alert(1)"))
	assert.Equal(t, "", StripDangerous("<scr<script>ipt>"))
}

func TestStripMap(t *testing.T) {
	out := StripMap(map[string]string{"activityType": "labor_added", "url": "javascript:x"})
	assert.Equal(t, "labor_added", out["activityType"])
	assert.Equal(t, "x", out["url"])
}
