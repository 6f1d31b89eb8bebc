package telegram

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/spravka/internal/indexer"
)

const sampleExport = `{
  "name": "Поддержка магазинов",
  "type": "private_group",
  "messages": [
    {"id": 1, "type": "service", "action": "create_group", "date_unixtime": "1700000000", "text": ""},
    {"id": 2, "type": "message", "date_unixtime": "1700000060", "from": "Ольга", "text": "Привет"},
    {"id": 3, "type": "message", "date_unixtime": "1700000120", "from": "Ольга",
     "text": ["УТМ не видит ", {"type": "bold", "text": "ключ"}, ", ошибка 409 при отправке"]},
    {"id": 4, "type": "message", "date_unixtime": "1700000180", "from": "Ольга",
     "photo": "photos/photo_1@14-11-2023.jpg", "text": ""},
    {"id": 5, "type": "message", "date_unixtime": "1700000240", "from": "Админ",
     "text": "Перезапустите   службу УТМ и проверьте ключ"},
    {"id": 6, "type": "message", "date_unixtime": "1700000300", "from": "Ольга", "media_type": "sticker",
     "text": ""},
    {"id": 7, "type": "message", "date_unixtime": "1700000360", "from": "Ольга", "text": "спасибо, помогло!"},
    {"id": 8, "type": "message", "date_unixtime": "1700050000", "from": "Игорь",
     "text": "Касса не печатает чек после обновления драйвера"},
    {"id": 9, "type": "message", "date_unixtime": "1700050100", "from": "Игорь", "media_type": "voice_message",
     "text": ""}
  ]
}`

func writeExport(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	if err := os.WriteFile(path, []byte(sampleExport), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "photos"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "photos", "photo_1@14-11-2023.jpg"), []byte("jpeg"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse_FlattensEntityText(t *testing.T) {
	msgs, err := Load(writeExport(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 9 {
		t.Fatalf("parsed %d messages, want 9", len(msgs))
	}
	if got := msgs[2].Text; got != "УТМ не видит  ключ , ошибка 409 при отправке" {
		t.Errorf("flattened text = %q", got)
	}
	if msgs[3].Photo == "" || !msgs[3].HasPhoto() {
		t.Error("photo message lost its photo")
	}
	if msgs[0].Date.Unix() != 1700000000 {
		t.Errorf("date = %v", msgs[0].Date)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := Parse([]byte(`{"name": "x"}`)); err == nil {
		t.Error("expected error without messages")
	}
}

func TestFilter(t *testing.T) {
	msgs, _ := Load(writeExport(t))
	kept := Filter(msgs, DefaultMinLength, DefaultKeywords)

	var ids []int64
	for _, m := range kept {
		ids = append(ids, m.ID)
	}
	want := []int64{3, 4, 5, 8}
	if len(ids) != len(want) {
		t.Fatalf("kept ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("kept ids = %v, want %v", ids, want)
		}
	}
	if kept[2].Text != "Перезапустите службу УТМ и проверьте ключ" {
		t.Errorf("text not normalized: %q", kept[2].Text)
	}
	if msgs[4].Text == kept[2].Text {
		t.Error("Filter modified the input message")
	}
}

func TestIsSmallTalk(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"ок", true},
		{"Спокойной ночи.", true},
		{"короткое", true},
		{"Добрый день", true},
		{"не работает сканер штрихкодов", false},
	}
	for _, tt := range tests {
		if got := isSmallTalk(tt.text, DefaultMinLength); got != tt.want {
			t.Errorf("isSmallTalk(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsTechnical_Patterns(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"адрес 192.168.0.10 не отвечает", true},
		{"выдаёт код 17 и всё", true},
		{"стоит версия 8 или новее?", true},
		{"завтра будем позже обычного", false},
	}
	for _, tt := range tests {
		if got := isTechnical(tt.text, DefaultKeywords); got != tt.want {
			t.Errorf("isTechnical(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestGroup(t *testing.T) {
	at := func(min int) *Message { return &Message{Date: time.Unix(int64(min*60), 0)} }
	msgs := []*Message{at(0), at(60), at(200), at(500), at(501)}
	groups := Group(msgs, 3*time.Hour)
	if len(groups) != 2 || len(groups[0]) != 3 || len(groups[1]) != 2 {
		t.Errorf("group sizes = %v", sizes(groups))
	}
	if Group(nil, time.Hour) != nil {
		t.Error("empty input should give no dialogues")
	}
}

func sizes(groups [][]*Message) []int {
	out := make([]int, len(groups))
	for i, g := range groups {
		out[i] = len(g)
	}
	return out
}

func TestTopic(t *testing.T) {
	long := strings.Repeat("щ", 100)
	if got := Topic([]*Message{{Text: long}}); got != strings.Repeat("щ", 77)+"..." {
		t.Errorf("long topic = %q", got)
	}
	if got := Topic([]*Message{{Photo: "p.jpg"}}); got != "Техническая консультация" {
		t.Errorf("photo-only topic = %q", got)
	}
	if got := Topic(nil); got != "Общий вопрос" {
		t.Errorf("empty topic = %q", got)
	}
}

func TestConvert(t *testing.T) {
	path := writeExport(t)
	images := filepath.Join(t.TempDir(), "images")
	res, err := Convert(path, Options{ImagesDir: images, Location: time.UTC})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 9 || res.Kept != 4 || res.Dialogues != 2 || res.Images != 1 {
		t.Errorf("result counts = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(images, "telegram_d0_m1.jpg")); err != nil {
		t.Errorf("photo not copied: %v", err)
	}
	for _, want := range []string{
		"# УТМ не видит ключ , ошибка 409 при отправке",
		"**Дата:** 2023-11-14 22:15",
		"[[image: images/telegram_d0_m1.jpg]]",
		"**Админ:** Перезапустите службу УТМ и проверьте ключ",
		"\n---\n\n# Касса не печатает чек после обновления драйвера",
	} {
		if !strings.Contains(res.Markdown, want) {
			t.Errorf("markdown missing %q:\n%s", want, res.Markdown)
		}
	}

	parsed := indexer.SplitInstructions(res.Markdown, ".md", "telegram")
	if len(parsed) != 2 {
		t.Fatalf("markdown splits into %d instructions, want 2", len(parsed))
	}
	if len(parsed[0].Images) != 1 || parsed[0].Images[0].Path != "images/telegram_d0_m1.jpg" {
		t.Errorf("first instruction images = %+v", parsed[0].Images)
	}
	if parsed[1].Title != "Касса не печатает чек после обновления драйвера" {
		t.Errorf("second title = %q", parsed[1].Title)
	}
}

func TestConvert_MissingPhotoIsSkipped(t *testing.T) {
	path := writeExport(t)
	if err := os.RemoveAll(filepath.Join(filepath.Dir(path), "photos")); err != nil {
		t.Fatal(err)
	}
	res, err := Convert(path, Options{ImagesDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Images != 0 || strings.Contains(res.Markdown, "[[image:") {
		t.Errorf("missing photo produced a marker: %+v", res)
	}
	if _, err := Convert(filepath.Join(t.TempDir(), "absent.json"), Options{}); err == nil {
		t.Error("expected error for missing export")
	}
}
