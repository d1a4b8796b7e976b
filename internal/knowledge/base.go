package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/utils"
)

const instructionsPreamble = "Use the following company information when it is relevant to the user's question:\n"

// Document is the on-disk layout of the knowledge file
type Document struct {
	CompanyInfo map[string]any `json:"company_info"`
}

func defaultDocument() Document {
	return Document{CompanyInfo: map[string]any{
		"name":    "Infobot Technologies",
		"address": "Manchester, UK",
		"contact": map[string]any{
			"email": "info@infobot.co.uk",
			"phone": "+447464177761",
		},
		"services": []any{
			"WhatsApp Business API Integration",
			"Custom Chatbot Development",
			"AI-Powered Customer Service Solutions",
		},
		"business_hours": "Monday - Friday, 9:00 AM - 5:00 PM",
	}}
}

// Base holds company information that is passed to every assistant run as
// additional instructions.
type Base struct {
	path string

	mu  sync.RWMutex
	doc Document
}

// Load reads the knowledge file at path. A missing file is created with a
// default document.
func Load(path string) (*Base, error) {
	b := &Base{path: path}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		b.doc = defaultDocument()
		if err := b.save(); err != nil {
			return nil, err
		}
		utils.Zlog.Info("Created knowledge base with default values", zap.String("path", path))
		return b, nil
	}

	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload re-reads the knowledge file. On error the previous document is kept.
func (b *Base) Reload() error {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("failed to read knowledge file %s: %w", b.path, err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse knowledge file %s: %w", b.path, err)
	}
	if doc.CompanyInfo == nil {
		doc.CompanyInfo = map[string]any{}
	}

	b.mu.Lock()
	b.doc = doc
	b.mu.Unlock()

	utils.Zlog.Info("Knowledge base loaded",
		zap.String("path", b.path),
		zap.Int("fields", len(doc.CompanyInfo)))
	return nil
}

// CompanyInfo returns a shallow copy of the company information.
func (b *Base) CompanyInfo() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.doc.CompanyInfo)
}

// Update merges info into the company information and saves the file.
func (b *Base) Update(info map[string]any) error {
	b.mu.Lock()
	prev := maps.Clone(b.doc.CompanyInfo)
	if b.doc.CompanyInfo == nil {
		b.doc.CompanyInfo = map[string]any{}
	}
	maps.Copy(b.doc.CompanyInfo, info)
	b.mu.Unlock()

	if err := b.save(); err != nil {
		b.mu.Lock()
		b.doc.CompanyInfo = prev
		b.mu.Unlock()
		return err
	}

	utils.Zlog.Info("Knowledge base updated", zap.Int("fields", len(info)))
	return nil
}

// Instructions renders the company information as run instructions. It is
// empty when there is nothing to say.
func (b *Base) Instructions() string {
	if b == nil {
		return ""
	}
	info := b.CompanyInfo()
	if len(info) == 0 {
		return ""
	}

	// map keys marshal sorted, so the output is stable between runs
	body, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		utils.Zlog.Error("Failed to render knowledge instructions", zap.Error(err))
		return ""
	}
	return instructionsPreamble + string(body)
}

func (b *Base) save() error {
	b.mu.RLock()
	body, err := json.MarshalIndent(b.doc, "", "    ")
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode knowledge base: %w", err)
	}

	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create knowledge directory: %w", err)
		}
	}
	if err := os.WriteFile(b.path, body, 0644); err != nil {
		return fmt.Errorf("failed to write knowledge file %s: %w", b.path, err)
	}
	return nil
}
