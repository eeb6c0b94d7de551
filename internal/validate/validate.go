// Package validate holds the field validation rules shared by every write
// path. All functions are pure: they take the raw form value and return a
// Result, never touching storage.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ReturnPeriodDays is the window after the order date during which a return
// may be requested or approved.
const ReturnPeriodDays = 14

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}$`)
	userNameRegex = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	catNameRegex  = regexp.MustCompile(`^[a-zA-Z0-9\s]+$`)
	priceRegex    = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	urlRegex      = regexp.MustCompile(`(?i)^(https?://)?([\w.-]+)\.([a-z]{2,})(/\S*)?$`)
)

// Result is the outcome of a single-field check.
type Result struct {
	OK      bool
	Message string
}

func valid() Result             { return Result{OK: true} }
func invalid(msg string) Result { return Result{Message: msg} }

// FieldErrors maps field name to message for composite validations. It
// implements error so store Create/Update paths can return it directly.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(e))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// UserName allows letters and spaces, 2-50 characters.
func UserName(name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("Name is required")
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 || !userNameRegex.MatchString(name) {
		return invalid("Name must be 2-50 letters only")
	}
	return valid()
}

// ProductName is 3-50 characters.
func ProductName(name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("Product name is required")
	}
	if utf8.RuneCountInString(name) < 3 {
		return invalid("Product name must be at least 3 characters")
	}
	if utf8.RuneCountInString(name) > 50 {
		return invalid("Product name cannot exceed 50 characters")
	}
	return valid()
}

// CategoryName allows letters, numbers and spaces, 3-30 characters.
func CategoryName(name string) Result {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("Category name is required")
	}
	if utf8.RuneCountInString(name) < 3 {
		return invalid("Category name must be at least 3 characters")
	}
	if utf8.RuneCountInString(name) > 30 {
		return invalid("Category name cannot exceed 30 characters")
	}
	if !catNameRegex.MatchString(name) {
		return invalid("Category name may only contain letters, numbers and spaces")
	}
	return valid()
}

// CategoryUnique rejects a name already taken by another category,
// case-insensitively. excludeID skips the category being edited.
func CategoryUnique(name string, existing map[string]string, excludeID string) Result {
	want := strings.ToLower(strings.TrimSpace(name))
	for id, existingName := range existing {
		if id == excludeID {
			continue
		}
		if strings.ToLower(existingName) == want {
			return invalid("This category already exists")
		}
	}
	return valid()
}

// Price takes the raw form value. It must parse as a strictly positive
// number with at most two decimal places ("9.99" passes, "9.999" fails).
func Price(price string) Result {
	price = strings.TrimSpace(price)
	if price == "" {
		return invalid("Price is required")
	}
	if !priceRegex.MatchString(price) {
		p, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return invalid("Price must be a positive number")
		}
		if p < 0 {
			return invalid("Price cannot be negative")
		}
		return invalid("Price may have at most 2 decimal places")
	}
	p, err := strconv.ParseFloat(price, 64)
	if err != nil || p == 0 {
		return invalid("Price must be a positive number")
	}
	return valid()
}

// Stock must parse as a non-negative integer. Zero is the out-of-stock state.
func Stock(stock string) Result {
	stock = strings.TrimSpace(stock)
	if stock == "" {
		return invalid("Stock quantity is required")
	}
	n, err := strconv.Atoi(stock)
	if err != nil {
		return invalid("Stock must be a whole number")
	}
	if n < 0 {
		return invalid("Stock cannot be negative")
	}
	return valid()
}

// CategoryRef requires a non-empty id present in the registry snapshot.
func CategoryRef(categoryID string, existing map[string]string) Result {
	if categoryID == "" {
		return invalid("Please select a category")
	}
	if _, ok := existing[categoryID]; !ok {
		return invalid("Selected category does not exist")
	}
	return valid()
}

// Description requires at least 10 characters.
func Description(description string) Result {
	description = strings.TrimSpace(description)
	if description == "" {
		return invalid("Description is required")
	}
	if utf8.RuneCountInString(description) < 10 {
		return invalid("Description must be at least 10 characters")
	}
	return valid()
}

// ImageURL is optional; an empty value falls back to the placeholder.
func ImageURL(url string) Result {
	url = strings.TrimSpace(url)
	if url == "" {
		return valid()
	}
	if !urlRegex.MatchString(url) {
		return invalid("Please enter a valid image URL")
	}
	return valid()
}

// Quantity must be a positive integer, and no larger than maxStock when
// maxStock is non-negative (pass -1 to skip the stock bound).
func Quantity(qty, maxStock int) Result {
	if qty < 1 {
		return invalid("Quantity must be a positive number")
	}
	if maxStock >= 0 && qty > maxStock {
		return invalid(fmt.Sprintf("Requested quantity exceeds available stock (Available: %d)", maxStock))
	}
	return valid()
}

// Rating must be an integer from 1 to 5.
func Rating(rating int) Result {
	if rating == 0 {
		return invalid("Please select a rating")
	}
	if rating < 1 || rating > 5 {
		return invalid("Rating must be between 1 and 5")
	}
	return valid()
}

// ReviewText is 10-500 characters.
func ReviewText(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalid("Please write your review")
	}
	if utf8.RuneCountInString(text) < 10 {
		return invalid("Review must be at least 10 characters")
	}
	if utf8.RuneCountInString(text) > 500 {
		return invalid("Review cannot exceed 500 characters")
	}
	return valid()
}

// ReturnReason must be non-empty.
func ReturnReason(reason string) Result {
	if strings.TrimSpace(reason) == "" {
		return invalid("Please select a return reason")
	}
	return valid()
}

// ReturnPeriod checks that no more than the given number of days have passed
// since the order date.
func ReturnPeriod(orderDate time.Time, days int) Result {
	if days <= 0 {
		days = ReturnPeriodDays
	}
	if time.Since(orderDate) > time.Duration(days)*24*time.Hour {
		return invalid(fmt.Sprintf("Return period has expired (%d days)", days))
	}
	return valid()
}

// Email matches the address shape used at registration.
func Email(email string) Result {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("Email is required")
	}
	if !emailRegex.MatchString(email) {
		return invalid("Please enter a valid email address")
	}
	return valid()
}

// Password requires at least 6 characters.
func Password(password string) Result {
	if password == "" {
		return invalid("Password is required")
	}
	if utf8.RuneCountInString(password) < 6 {
		return invalid("Password must be at least 6 characters")
	}
	return valid()
}

// ProductInput is the raw form data for creating or editing a product.
// Numeric fields arrive as strings, the way the admin form submits them.
type ProductInput struct {
	Name        string
	Price       string
	Stock       string
	CategoryID  string
	Description string
	Image       string
}

// Product validates every product field and collects all failures.
// categories is an id -> name snapshot of the registry.
func Product(in ProductInput, categories map[string]string) FieldErrors {
	errs := FieldErrors{}
	record := func(field string, r Result) {
		if !r.OK {
			errs[field] = r.Message
		}
	}
	record("name", ProductName(in.Name))
	record("price", Price(in.Price))
	record("stock", Stock(in.Stock))
	record("category", CategoryRef(in.CategoryID, categories))
	record("description", Description(in.Description))
	record("image", ImageURL(in.Image))
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Review validates a rating plus review text.
func Review(rating int, text string) FieldErrors {
	errs := FieldErrors{}
	if r := Rating(rating); !r.OK {
		errs["rating"] = r.Message
	}
	if r := ReviewText(text); !r.OK {
		errs["text"] = r.Message
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Registration validates user sign-up data.
func Registration(name, email, password string) FieldErrors {
	errs := FieldErrors{}
	if r := UserName(name); !r.OK {
		errs["name"] = r.Message
	}
	if r := Email(email); !r.OK {
		errs["email"] = r.Message
	}
	if r := Password(password); !r.OK {
		errs["password"] = r.Message
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
