package http

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"ledger/internal/core"
	"ledger/internal/export"
	"ledger/internal/log"
	"ledger/internal/services"
)

// directoryRoutes are the CRUD handlers of one record directory.
type directoryRoutes struct {
	base    string
	list    http.HandlerFunc
	newForm http.HandlerFunc
	create  http.HandlerFunc
	csv     http.HandlerFunc
	edit    http.HandlerFunc
	update  http.HandlerFunc
	delete  http.HandlerFunc
}

// directory describes a record type: how to parse, store and list it.
// Templates are looked up as <name>_page, <name>_rows and <name>_form_page.
type directory[T any] struct {
	name   string
	base   string
	title  string
	label  string
	parse  func(url.Values) (T, error)
	list   func(ctx context.Context, companyID string, f services.ListFilter) (core.Page[T], error)
	all    func(ctx context.Context, companyID string) ([]T, error)
	get    func(ctx context.Context, companyID, id string) (T, error)
	create func(ctx context.Context, companyID string, v T) (T, error)
	update func(ctx context.Context, companyID, id string, v T) (T, error)
	remove func(ctx context.Context, companyID, id string) error
	csv    func(w io.Writer, items []T) error
}

type directoryListView[T any] struct {
	Page  core.Page[T]
	Query string
}

type directoryFormView[T any] struct {
	Record T
	Action string
}

func (d directory[T]) routes(s *Server) directoryRoutes {
	return directoryRoutes{
		base: d.base,
		list: func(w http.ResponseWriter, r *http.Request) {
			params := ParseListParams(r.URL.Query())
			page, err := d.list(r.Context(), principal(r).CompanyID, services.ListFilter{
				Query:   params.Query,
				Page:    params.Page,
				PerPage: params.PerPage,
			})
			if err != nil {
				s.fail(w, r, "list_"+d.name, err)
				return
			}
			data := directoryListView[T]{Page: page, Query: params.Query}
			if isHTMX(r) {
				s.page(w, r, d.name+"_rows", "", "", data)
				return
			}
			s.page(w, r, d.name+"_page", d.title, d.name, data)
		},
		newForm: func(w http.ResponseWriter, r *http.Request) {
			var zero T
			s.page(w, r, d.name+"_form_page", "New "+d.label, d.name, directoryFormView[T]{Record: zero, Action: d.base})
		},
		create: func(w http.ResponseWriter, r *http.Request) {
			if resp := ParseFormOrFail(r); resp != nil {
				resp.Write(w)
				return
			}
			v, err := d.parse(r.PostForm)
			if err != nil {
				s.fail(w, r, "create_"+d.name, err)
				return
			}
			if _, err := d.create(r.Context(), principal(r).CompanyID, v); err != nil {
				s.fail(w, r, "create_"+d.name, err)
				return
			}
			s.done(w, r, d.base, NewHTMXResponse().
				TriggerChanged(d.name).
				TriggerSuccessNotification(d.label+" created"))
		},
		csv: func(w http.ResponseWriter, r *http.Request) {
			items, err := d.all(r.Context(), principal(r).CompanyID)
			if err != nil {
				s.fail(w, r, "export_"+d.name, err)
				return
			}
			csvAttachment(w, d.name+".csv")
			if err := d.csv(w, items); err != nil {
				s.events.LogError(r.Context(), "CSV export failed", err, log.ComponentExport, "export_"+d.name, nil)
			}
		},
		edit: func(w http.ResponseWriter, r *http.Request) {
			id := r.PathValue("id")
			v, err := d.get(r.Context(), principal(r).CompanyID, id)
			if err != nil {
				s.fail(w, r, "edit_"+d.name, err)
				return
			}
			s.page(w, r, d.name+"_form_page", "Edit "+d.label, d.name, directoryFormView[T]{Record: v, Action: d.base + "/" + id})
		},
		update: func(w http.ResponseWriter, r *http.Request) {
			if resp := ParseFormOrFail(r); resp != nil {
				resp.Write(w)
				return
			}
			v, err := d.parse(r.PostForm)
			if err != nil {
				s.fail(w, r, "update_"+d.name, err)
				return
			}
			if _, err := d.update(r.Context(), principal(r).CompanyID, r.PathValue("id"), v); err != nil {
				s.fail(w, r, "update_"+d.name, err)
				return
			}
			s.done(w, r, d.base, NewHTMXResponse().
				TriggerChanged(d.name).
				TriggerSuccessNotification(d.label+" saved"))
		},
		delete: func(w http.ResponseWriter, r *http.Request) {
			if err := d.remove(r.Context(), principal(r).CompanyID, r.PathValue("id")); err != nil {
				s.fail(w, r, "delete_"+d.name, err)
				return
			}
			if !isHTMX(r) {
				http.Redirect(w, r, d.base, http.StatusSeeOther)
				return
			}
			NewHTMXResponse().
				TriggerChanged(d.name).
				TriggerSuccessNotification(d.label + " deleted").
				Write(w)
		},
	}
}

func (s *Server) customerRoutes() directoryRoutes {
	dir := s.deps.Directory
	return directory[core.Customer]{
		name:  "customers",
		base:  "/customers",
		title: "Customers",
		label: "Customer",
		parse: func(form url.Values) (core.Customer, error) {
			return core.Customer{Contact: parseContactForm(form)}, nil
		},
		list:   dir.ListCustomers,
		all:    dir.AllCustomers,
		get:    dir.GetCustomer,
		create: dir.CreateCustomer,
		update: func(ctx context.Context, companyID, id string, c core.Customer) (core.Customer, error) {
			c.ID = id
			return dir.UpdateCustomer(ctx, companyID, c)
		},
		remove: dir.DeleteCustomer,
		csv:    export.WriteCustomersCSV,
	}.routes(s)
}

func (s *Server) vendorRoutes() directoryRoutes {
	dir := s.deps.Directory
	return directory[core.Vendor]{
		name:  "vendors",
		base:  "/vendors",
		title: "Vendors",
		label: "Vendor",
		parse: func(form url.Values) (core.Vendor, error) {
			return core.Vendor{Contact: parseContactForm(form)}, nil
		},
		list:   dir.ListVendors,
		all:    dir.AllVendors,
		get:    dir.GetVendor,
		create: dir.CreateVendor,
		update: func(ctx context.Context, companyID, id string, v core.Vendor) (core.Vendor, error) {
			v.ID = id
			return dir.UpdateVendor(ctx, companyID, v)
		},
		remove: dir.DeleteVendor,
		csv:    export.WriteVendorsCSV,
	}.routes(s)
}

func (s *Server) inventoryRoutes() directoryRoutes {
	dir := s.deps.Directory
	return directory[core.InventoryItem]{
		name:   "inventory",
		base:   "/inventory",
		title:  "Inventory",
		label:  "Item",
		parse:  parseItemForm,
		list:   dir.ListItems,
		all:    dir.AllItems,
		get:    dir.GetItem,
		create: dir.CreateItem,
		update: func(ctx context.Context, companyID, id string, it core.InventoryItem) (core.InventoryItem, error) {
			it.ID = id
			return dir.UpdateItem(ctx, companyID, it)
		},
		remove: dir.DeleteItem,
		csv:    export.WriteInventoryCSV,
	}.routes(s)
}
