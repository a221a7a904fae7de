package models

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// These structs define the JSON payloads exchanged between the admin and
// public front ends and the tracker's functions.

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// UploadFile is one image selected for a progress entry.
type UploadFile struct {
	Name string
	Data []byte
}

// AddProgressRequest carries the non-file fields of an add-progress call.
type AddProgressRequest struct {
	ProductID string `json:"productId" validate:"required"`
	StepID    string `json:"taskId"`
	Note      string `json:"note"`
}

// Validate validates the AddProgressRequest using the validator.
func (r *AddProgressRequest) Validate() error {
	return validate.Struct(r)
}

// AddProgressResponse reports the created entry and any per-file failures.
type AddProgressResponse struct {
	Status   string   `json:"status"`
	EntryID  string   `json:"entryId"`
	Images   []string `json:"images"`
	Failures []string `json:"failures,omitempty"`
	Message  string   `json:"message"`
}

// CatalogRequest is the input for the catalog-admin function. Action selects
// the operation; the remaining fields are read as that action needs them.
type CatalogRequest struct {
	Action    string `json:"action" validate:"required,oneof=addProduct updateProduct addStep toggleStep setStepDone deleteProduct"`
	ProductID string `json:"productId" validate:"required_unless=Action addProduct"`
	StepID    string `json:"taskId" validate:"required_if=Action toggleStep,required_if=Action setStepDone"`
	Name      string `json:"name"`
	Note      string `json:"note"`
	Status    string `json:"status" validate:"omitempty,oneof=u_izradi pauza zavrseno"`
	Title     string `json:"title"`
	Done      bool   `json:"done"`
}

// Validate validates the CatalogRequest using the validator.
func (r *CatalogRequest) Validate() error {
	return validate.Struct(r)
}

// CatalogResponse is the output of the catalog-admin function.
type CatalogResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// DeleteRequest is the input for the cascade-delete functions.
type DeleteRequest struct {
	ProductID string `json:"productId" validate:"required"`
	StepID    string `json:"taskId"`
	EntryID   string `json:"entryId"`
}

// Validate validates the DeleteRequest using the validator.
func (r *DeleteRequest) Validate() error {
	return validate.Struct(r)
}

// DeleteResponse is the output of the cascade-delete functions.
type DeleteResponse struct {
	Status               string `json:"status"`
	EntriesDeleted       int    `json:"entriesDeleted"`
	StepsDeleted         int    `json:"stepsDeleted"`
	ObjectsDeleted       int    `json:"objectsDeleted"`
	ObjectDeleteFailures int    `json:"objectDeleteFailures"`
	Message              string `json:"message"`
}

// ProductView is everything the public view renders for one product.
type ProductView struct {
	Product  Product         `json:"product"`
	Steps    []Step          `json:"steps"`
	Entries  []ProgressEntry `json:"entries"`
	Progress int             `json:"progress"`
	Done     int             `json:"done"`
	Total    int             `json:"total"`
}

// PublicViewResponse lists products and, when one is selected, its view.
type PublicViewResponse struct {
	Products []Product    `json:"products"`
	View     *ProductView `json:"view,omitempty"`
}

// ReportRequest is the input for the progress-report function.
type ReportRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

// Validate validates the ReportRequest using the validator.
func (r *ReportRequest) Validate() error {
	return validate.Struct(r)
}

// ReportResponse is the output of the progress-report function.
type ReportResponse struct {
	Status    string `json:"status"`
	ReportURL string `json:"reportUrl"`
	PageCount int    `json:"pageCount"`
}
