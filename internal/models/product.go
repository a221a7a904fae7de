package models

import (
	"math"
	"time"

	"github.com/Lllllllleong/productprogress/internal/store"
)

// Status is the lifecycle state of a product. The wire values are persisted
// verbatim and must not change.
type Status string

const (
	StatusInProgress Status = "u_izradi"
	StatusPaused     Status = "pauza"
	StatusDone       Status = "zavrseno"
)

// ParseStatus maps a stored value to a Status, defaulting to StatusInProgress.
func ParseStatus(v string) Status {
	switch Status(v) {
	case StatusPaused:
		return StatusPaused
	case StatusDone:
		return StatusDone
	default:
		return StatusInProgress
	}
}

// Label is the display name shown on the public view.
func (s Status) Label() string {
	switch s {
	case StatusPaused:
		return "Pauza"
	case StatusDone:
		return "Završeno"
	default:
		return "U izradi"
	}
}

const (
	// DefaultAuthor is recorded when the caller's identity is unknown.
	DefaultAuthor = "admin"
	// NoStepSentinel replaces the step id in upload paths of unlinked entries.
	NoStepSentinel = "no-task"
)

// Product is the root of a hierarchy, stored in the products collection.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Note      string    `json:"note,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Step is a to-do item of a product, stored in products/{id}/tasks.
type Step struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Title     string    `json:"title,omitempty"`
	Order     int       `json:"order"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProgressEntry is an append-only log entry with photos, stored in
// products/{id}/updates. An empty StepID means the entry is unlinked.
type ProgressEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	StepID    string    `json:"taskId,omitempty"`
	Note      string    `json:"note,omitempty"`
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"createdAt"`
	Author    string    `json:"author,omitempty"`
}

// Collection and field names.
const (
	productsCollection = "products"
	stepsCollection    = "tasks"
	entriesCollection  = "updates"

	FieldName      = "name"
	FieldNote      = "note"
	FieldStatus    = "status"
	FieldCreatedAt = "createdAt"
	FieldTitle     = "title"
	FieldOrder     = "order"
	FieldDone      = "done"
	FieldStepID    = "taskId"
	FieldImages    = "images"
	FieldAuthor    = "author"
)

// ProductsCollection is the root collection of products.
func ProductsCollection() string { return productsCollection }

func ProductPath(productID string) string { return store.Join(productsCollection, productID) }

func StepsCollection(productID string) string {
	return store.Join(productsCollection, productID, stepsCollection)
}

func StepPath(productID, stepID string) string {
	return store.Join(StepsCollection(productID), stepID)
}

func EntriesCollection(productID string) string {
	return store.Join(productsCollection, productID, entriesCollection)
}

func EntryPath(productID, entryID string) string {
	return store.Join(EntriesCollection(productID), entryID)
}

// ProductFromFields builds a Product from a raw document. No field is
// required; missing or mistyped fields keep their zero value.
func ProductFromFields(id string, f map[string]any) Product {
	return Product{
		ID:        id,
		Name:      stringField(f, FieldName),
		Note:      stringField(f, FieldNote),
		Status:    ParseStatus(stringField(f, FieldStatus)),
		CreatedAt: timeField(f, FieldCreatedAt),
	}
}

// StepFromFields builds a Step from a raw document.
func StepFromFields(productID, id string, f map[string]any) Step {
	return Step{
		ID:        id,
		ProductID: productID,
		Title:     stringField(f, FieldTitle),
		Order:     intField(f, FieldOrder),
		Done:      boolField(f, FieldDone),
		CreatedAt: timeField(f, FieldCreatedAt),
	}
}

// EntryFromFields builds a ProgressEntry from a raw document.
func EntryFromFields(productID, id string, f map[string]any) ProgressEntry {
	e := ProgressEntry{
		ID:        id,
		ProductID: productID,
		StepID:    stringField(f, FieldStepID),
		Note:      stringField(f, FieldNote),
		Images:    []string{},
		CreatedAt: timeField(f, FieldCreatedAt),
		Author:    stringField(f, FieldAuthor),
	}
	switch imgs := f[FieldImages].(type) {
	case []string:
		e.Images = append(e.Images, imgs...)
	case []any:
		for _, v := range imgs {
			if s, ok := v.(string); ok && s != "" {
				e.Images = append(e.Images, s)
			}
		}
	}
	return e
}

// Fields returns the document fields of a new product.
func (p Product) Fields() map[string]any {
	return map[string]any{
		FieldName:      p.Name,
		FieldNote:      p.Note,
		FieldStatus:    string(ParseStatus(string(p.Status))),
		FieldCreatedAt: store.ServerTimestamp,
	}
}

// Fields returns the document fields of a new step.
func (s Step) Fields() map[string]any {
	return map[string]any{
		FieldTitle:     s.Title,
		FieldOrder:     s.Order,
		FieldDone:      s.Done,
		FieldCreatedAt: store.ServerTimestamp,
	}
}

// Fields returns the document fields of a new progress entry.
func (e ProgressEntry) Fields() map[string]any {
	images := e.Images
	if images == nil {
		images = []string{}
	}
	author := e.Author
	if author == "" {
		author = DefaultAuthor
	}
	return map[string]any{
		FieldStepID:    e.StepID,
		FieldNote:      e.Note,
		FieldImages:    images,
		FieldCreatedAt: store.ServerTimestamp,
		FieldAuthor:    author,
	}
}

// Progress is the rounded percentage of done steps, 0 when there are none.
func Progress(steps []Step) int {
	if len(steps) == 0 {
		return 0
	}
	return int(math.Round(float64(DoneCount(steps)) / float64(len(steps)) * 100))
}

// DoneCount returns how many steps are done.
func DoneCount(steps []Step) int {
	n := 0
	for _, s := range steps {
		if s.Done {
			n++
		}
	}
	return n
}

// NextOrder returns max(order)+1, or 1 for a product without steps. The value
// is a sort hint only; concurrent writers can produce duplicates.
func NextOrder(steps []Step) int {
	if len(steps) == 0 {
		return 1
	}
	max := steps[0].Order
	for _, s := range steps[1:] {
		if s.Order > max {
			max = s.Order
		}
	}
	return max + 1
}

func stringField(f map[string]any, key string) string {
	s, _ := f[key].(string)
	return s
}

func boolField(f map[string]any, key string) bool {
	b, _ := f[key].(bool)
	return b
}

func intField(f map[string]any, key string) int {
	switch n := f[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func timeField(f map[string]any, key string) time.Time {
	t, _ := f[key].(time.Time)
	return t
}
