// Package telegram turns a Telegram chat export (result.json) into instruction markdown:
// support dialogues become instructions separated by "---", with screenshots copied next to
// the knowledge base and referenced by [[image: path]] markers.
package telegram

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/otiai10/copy"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// DefaultWindow is the largest gap between messages of one dialogue.
	DefaultWindow = 3 * time.Hour
	// DefaultMinLength is the shortest text message kept, in characters.
	DefaultMinLength = 10

	maxTopicLength = 80
	dateLayout     = "2006-01-02 15:04"
)

// DefaultKeywords mark a text message as technical when any of them is a substring.
var DefaultKeywords = []string{
	"егаис", "утм", "марк", "остатки", "фтп", "ftp", "справочник", "утилита", "fsrar", "алкоголь",
	"1с", "робот", "загрузка", "выгрузка", "обработка", "база", "бд", "конфигурация", "обновление",
	"синхронизация",
	"ошибка", "error", "не работает", "проблема", "баг", "падает", "вылетает", "зависает", "глюк",
	"сбой", "крэш",
	"ккм", "касса", "чек", "фискал", "терминал", "принтер", "сканер", "весы", "оборудование",
	"сервер", "комп", "виндовс", "windows", "драйвер", "служба", "порт", "ip", "сеть",
	"подключение", "настройка",
	"накладная", "приход", "расход", "инвентаризация", "акт", "документ", "товар", "номенклатура",
	"ценник",
	"переустановка", "установка", "удаление", "перезагрузка", "запуск", "остановка", "проверка",
}

var (
	skipPhrases = []string{
		"привет", "здравствуй", "спасибо", "пасиб", "ок", "окей", "да", "нет", "хорошо", "понял",
		"ясно", "норм", "отлично", "👍", "👌", "🙏", "😊", "😁", "+", "++", "+++",
		"спокойной ночи", "доброе утро", "добрый день", "пока",
	}
	technicalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
		regexp.MustCompile(`ошибк[аи]?\s*\d+`),
		regexp.MustCompile(`error\s*\d+`),
		regexp.MustCompile(`версия\s*\d+`),
		regexp.MustCompile(`код\s*\d+`),
	}
	spaceRe = regexp.MustCompile(`\s+`)
)

// Message is one chat message as kept from the export.
type Message struct {
	ID        int64
	Type      string
	MediaType string
	From      string
	Date      time.Time
	Text      string
	Photo     string
}

// HasPhoto reports whether the message carries a photo.
func (m *Message) HasPhoto() bool { return m.Photo != "" }

// Options control conversion. Zero values take the defaults.
type Options struct {
	// PhotosDir is searched for photos by file name. Defaults to "photos" next to the export.
	PhotosDir string
	// ImagesDir receives copied photos. Empty skips copying and image markers.
	ImagesDir string
	// ImagePrefix is written in markers in front of the copied file name.
	ImagePrefix string
	Window      time.Duration
	MinLength   int
	Keywords    []string
	Location    *time.Location
	Logger      *zap.Logger
}

func (o *Options) defaults(exportPath string) {
	if o.PhotosDir == "" {
		o.PhotosDir = filepath.Join(filepath.Dir(exportPath), "photos")
	}
	if o.ImagePrefix == "" {
		o.ImagePrefix = "images"
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MinLength <= 0 {
		o.MinLength = DefaultMinLength
	}
	if len(o.Keywords) == 0 {
		o.Keywords = DefaultKeywords
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Result is a converted export.
type Result struct {
	Markdown  string
	Total     int
	Kept      int
	Dialogues int
	Images    int
}

// Load reads the messages of a Telegram export file.
func Load(path string) ([]*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return Parse(data)
}

// Parse decodes the messages of a Telegram export. The text field may be a plain string or
// a list of strings and formatted entities; both are flattened to plain text.
func Parse(data []byte) ([]*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("export is not valid JSON")
	}
	messages := gjson.GetBytes(data, "messages")
	if !messages.IsArray() {
		return nil, fmt.Errorf("export has no messages array")
	}
	var out []*Message
	messages.ForEach(func(_, m gjson.Result) bool {
		msg := &Message{
			ID:        m.Get("id").Int(),
			Type:      m.Get("type").String(),
			MediaType: m.Get("media_type").String(),
			From:      m.Get("from").String(),
			Text:      flattenText(m.Get("text")),
			Photo:     m.Get("photo").String(),
		}
		if unix := m.Get("date_unixtime"); unix.Exists() {
			if sec, err := strconv.ParseInt(unix.String(), 10, 64); err == nil {
				msg.Date = time.Unix(sec, 0)
			}
		}
		out = append(out, msg)
		return true
	})
	return out, nil
}

func flattenText(v gjson.Result) string {
	if !v.IsArray() {
		return v.String()
	}
	var parts []string
	for _, part := range v.Array() {
		if part.IsObject() {
			parts = append(parts, part.Get("text").String())
			continue
		}
		parts = append(parts, part.String())
	}
	return strings.Join(parts, " ")
}

// Filter keeps photo messages and technical text messages. Stickers, voice messages,
// service entries and small talk are dropped. Kept texts are whitespace-normalized.
func Filter(messages []*Message, minLength int, keywords []string) []*Message {
	var out []*Message
	for _, m := range messages {
		if m.MediaType == "sticker" || m.MediaType == "voice_message" || m.Type != "message" {
			continue
		}
		text := cleanText(m.Text)
		if !m.HasPhoto() && (isSmallTalk(text, minLength) || !isTechnical(text, keywords)) {
			continue
		}
		kept := *m
		kept.Text = text
		out = append(out, &kept)
	}
	return out
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func isSmallTalk(text string, minLength int) bool {
	if utf8.RuneCountInString(text) < minLength {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range skipPhrases {
		if lower == p || lower == p+"." {
			return true
		}
	}
	return false
}

func isTechnical(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	for _, re := range technicalPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// Group splits messages into dialogues wherever two neighbours are more than window apart.
func Group(messages []*Message, window time.Duration) [][]*Message {
	if len(messages) == 0 {
		return nil
	}
	var dialogues [][]*Message
	current := []*Message{messages[0]}
	for i := 1; i < len(messages); i++ {
		if messages[i].Date.Sub(messages[i-1].Date) > window {
			dialogues = append(dialogues, current)
			current = nil
		}
		current = append(current, messages[i])
	}
	return append(dialogues, current)
}

// Convert reads the export at exportPath and renders its technical dialogues as markdown
// instructions separated by "---".
func Convert(exportPath string, opts Options) (*Result, error) {
	opts.defaults(exportPath)
	messages, err := Load(exportPath)
	if err != nil {
		return nil, err
	}
	kept := Filter(messages, opts.MinLength, opts.Keywords)
	dialogues := Group(kept, opts.Window)

	res := &Result{Total: len(messages), Kept: len(kept), Dialogues: len(dialogues)}
	sections := make([]string, 0, len(dialogues))
	for i, d := range dialogues {
		images := copyImages(d, i, exportPath, &opts)
		res.Images += len(images)
		sections = append(sections, renderDialogue(d, images, opts.Location))
	}
	res.Markdown = strings.Join(sections, "\n---\n\n")
	opts.Logger.Info("Telegram export converted",
		zap.String("path", exportPath),
		zap.Int("messages", res.Total),
		zap.Int("kept", res.Kept),
		zap.Int("dialogues", res.Dialogues),
		zap.Int("images", res.Images))
	return res, nil
}

// Topic is the first message of a dialogue, cut to a heading-sized length.
func Topic(dialogue []*Message) string {
	if len(dialogue) == 0 {
		return "Общий вопрос"
	}
	text := dialogue[0].Text
	if text == "" {
		return "Техническая консультация"
	}
	if utf8.RuneCountInString(text) > maxTopicLength {
		r := []rune(text)
		return string(r[:maxTopicLength-3]) + "..."
	}
	return text
}

func renderDialogue(dialogue []*Message, images []string, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", Topic(dialogue))
	fmt.Fprintf(&b, "**Дата:** %s\n\n", dialogue[0].Date.In(loc).Format(dateLayout))
	if len(images) > 0 {
		b.WriteString("**Скриншоты:**\n")
		for _, img := range images {
			fmt.Fprintf(&b, "[[image: %s]]\n", img)
		}
		b.WriteString("\n")
	}
	lines := make([]string, 0, len(dialogue))
	for _, m := range dialogue {
		if m.Text == "" && !m.HasPhoto() {
			continue
		}
		author := m.From
		if author == "" {
			author = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("**%s:** %s", author, m.Text))
	}
	b.WriteString("**Диалог:**\n\n")
	b.WriteString(strings.Join(lines, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

// copyImages copies the photos of a dialogue into opts.ImagesDir and returns their marker paths.
// Missing photos are logged and skipped.
func copyImages(dialogue []*Message, dialogueIdx int, exportPath string, opts *Options) []string {
	if opts.ImagesDir == "" {
		return nil
	}
	var out []string
	for i, m := range dialogue {
		if !m.HasPhoto() {
			continue
		}
		src := findPhoto(m.Photo, exportPath, opts.PhotosDir)
		if src == "" {
			opts.Logger.Warn("Photo not found", zap.String("photo", m.Photo))
			continue
		}
		name := fmt.Sprintf("telegram_d%d_m%d%s", dialogueIdx, i, filepath.Ext(src))
		dst := filepath.Join(opts.ImagesDir, name)
		if err := copy.Copy(src, dst, copy.Options{PreserveTimes: true}); err != nil {
			opts.Logger.Warn("Failed to copy photo", zap.String("photo", src), zap.Error(err))
			continue
		}
		out = append(out, filepath.ToSlash(filepath.Join(opts.ImagePrefix, name)))
	}
	return out
}

func findPhoto(photo, exportPath, photosDir string) string {
	candidates := []string{
		filepath.Join(photosDir, filepath.Base(photo)),
		filepath.Join(filepath.Dir(exportPath), photo),
		photo,
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	return ""
}
