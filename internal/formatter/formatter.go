// Package formatter renders listings, identities and locations for the terminal.
package formatter

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rentvehical/rent-compass/internal/api"
	"github.com/rentvehical/rent-compass/internal/distance"
	"github.com/rentvehical/rent-compass/internal/geo"
	"github.com/rentvehical/rent-compass/internal/listing"
	"github.com/rentvehical/rent-compass/internal/vehicle"
)

const (
	maxTitleWidth = 40
	indent        = "             " // Length of "Description: "
)

// FormatTable formats listing results as a table string
func FormatTable(results []listing.Result) string {
	if len(results) == 0 {
		return ""
	}

	headers := []string{"ID", "Title", "Owner", "Status", "Images", "Distance", "Listed"}
	rows := make([][]string, len(results))

	for i, r := range results {
		v := r.Vehicle
		rows[i] = []string{
			v.ID,
			truncate(v.Title, maxTitleWidth),
			v.User.Name,
			v.Status(),
			formatImages(len(v.Images)),
			formatDistance(r.Distance),
			formatDate(v.CreatedAt),
		}
	}

	return renderTable(headers, rows)
}

// FormatVehicles formats plain listings, as returned for the owner's own vehicles
func FormatVehicles(vs []vehicle.Vehicle) string {
	results := make([]listing.Result, len(vs))
	for i, v := range vs {
		results[i] = listing.Result{Vehicle: v}
	}
	return FormatTable(results)
}

// FormatView formats a whole listing view: a summary line, then the table
// or an empty or error state
func FormatView(v listing.View) string {
	var output strings.Builder

	if v.Err != nil && !v.Stale {
		output.WriteString("Oops! Something went wrong\n")
		output.WriteString(fmt.Sprintf("%v\n", v.Err))
		output.WriteString("Try again with refresh.\n")
		return output.String()
	}

	if len(v.Items) == 0 {
		if v.Total == 0 {
			output.WriteString("No vehicles found\n")
		} else {
			output.WriteString(fmt.Sprintf("No vehicles match the current filters (%s)\n", describeState(v.State)))
		}
		return output.String()
	}

	output.WriteString(fmt.Sprintf("Showing %d vehicle%s", len(v.Items), plural(len(v.Items))))
	if v.Total != len(v.Items) {
		output.WriteString(fmt.Sprintf(" of %d", v.Total))
	}
	if v.FromCache {
		output.WriteString("  [Cached (10 min)]")
	}
	if v.Stale {
		output.WriteString("  [Stale: refresh failed]")
	}
	output.WriteString("\n")
	if v.Origin != nil {
		output.WriteString(fmt.Sprintf("Sorted by distance from %s\n", v.Origin))
	}
	output.WriteString("\n")
	output.WriteString(FormatTable(v.Items))

	return output.String()
}

// FormatVehicleDetail formats a single listing. dist is the distance from
// the device, or nil when unknown.
func FormatVehicleDetail(v vehicle.Vehicle, dist *float64) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("%s\n", v.Title))
	output.WriteString(fmt.Sprintf("%s\n", strings.Repeat("=", utf8.RuneCountInString(v.Title))))
	output.WriteString(fmt.Sprintf("ID:          %s\n", v.ID))
	output.WriteString(fmt.Sprintf("Status:      %s\n", v.Status()))
	output.WriteString(fmt.Sprintf("Owner:       %s\n", formatOwner(v.User, v.IsOwner)))
	if v.Description != "" {
		lines := strings.Split(strings.TrimSpace(v.Description), "\n")
		output.WriteString(fmt.Sprintf("Description: %s\n", lines[0]))
		for _, line := range lines[1:] {
			output.WriteString(fmt.Sprintf("%s%s\n", indent, line))
		}
	}
	if loc := FormatLocation(v.Location); loc != "" {
		output.WriteString(fmt.Sprintf("Location:    %s\n", loc))
	}
	if dist != nil {
		output.WriteString(fmt.Sprintf("Distance:    %s\n", distance.FormatAway(*dist)))
	}
	if cover, ok := v.Cover(); ok {
		output.WriteString(fmt.Sprintf("Images:      %s (cover: %s)\n", formatImages(len(v.Images)), cover))
	}
	if !v.CreatedAt.IsZero() {
		output.WriteString(fmt.Sprintf("Listed:      %s\n", formatDateTime(v.CreatedAt)))
	}
	if !v.UpdatedAt.IsZero() && !v.UpdatedAt.Equal(v.CreatedAt) {
		output.WriteString(fmt.Sprintf("Updated:     %s\n", formatDateTime(v.UpdatedAt)))
	}

	return output.String()
}

// FormatLocation formats a listing location on one line
func FormatLocation(loc *vehicle.Location) string {
	if loc == nil {
		return ""
	}
	var parts []string
	for _, p := range []string{loc.Address, loc.District, loc.State} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	line := strings.Join(parts, ", ")
	if loc.PinCode != "" {
		if line != "" {
			line += " - "
		}
		line += loc.PinCode
	}
	return line
}

// FormatIdentity formats who the user is. reason explains a guest identity.
func FormatIdentity(u api.User, reason error) string {
	if u.IsGuest() {
		if reason != nil {
			return fmt.Sprintf("Guest (%v)\n", reason)
		}
		return "Guest\n"
	}
	if u.Email != "" {
		return fmt.Sprintf("Logged in as %s <%s>\n", u.Name, u.Email)
	}
	return fmt.Sprintf("Logged in as %s\n", u.Name)
}

// FormatQuota formats the remaining contact reveals
func FormatQuota(remaining int) string {
	return fmt.Sprintf("Contact requests remaining: %d\n", remaining)
}

// FormatContact formats a revealed contact
func FormatContact(v vehicle.Vehicle, contact string) string {
	return fmt.Sprintf("Contact for %s: %s\n", v.Title, contact)
}

// FormatDeviceLocation formats the device position and, when the lookup
// resolved one, the city it belongs to
func FormatDeviceLocation(c distance.Coordinates, place *geo.IPLocation) string {
	const locIndent = "                 " // Length of "Your location:   "

	var output strings.Builder
	if place != nil && place.City != "" {
		output.WriteString(fmt.Sprintf("Your location:   %s, %s\n", place.City, place.Country))
		output.WriteString(fmt.Sprintf("%s%s\n", locIndent, c))
		return output.String()
	}
	output.WriteString(fmt.Sprintf("Your location:   %s\n", c))
	return output.String()
}

func renderTable(headers []string, rows [][]string) string {
	// Calculate column widths
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = utf8.RuneCountInString(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			cellWidth := utf8.RuneCountInString(cell)
			if cellWidth > widths[i] {
				widths[i] = cellWidth
			}
		}
	}

	var output strings.Builder

	// Header row
	headerParts := make([]string, len(headers))
	for i, header := range headers {
		headerParts[i] = padRight(header, widths[i])
	}
	output.WriteString(strings.TrimRight(strings.Join(headerParts, "   "), " "))
	output.WriteString("\n")

	// Separator row
	separators := make([]string, len(headers))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}
	output.WriteString(strings.Join(separators, "   "))
	output.WriteString("\n")

	// Data rows
	for _, row := range rows {
		rowParts := make([]string, len(row))
		for i, cell := range row {
			rowParts[i] = padRight(cell, widths[i])
		}
		output.WriteString(strings.TrimRight(strings.Join(rowParts, "   "), " "))
		output.WriteString("\n")
	}

	return output.String()
}

// padRight pads a string with spaces on the right to reach the specified width
func padRight(s string, width int) string {
	runeCount := utf8.RuneCountInString(s)
	if runeCount >= width {
		return s
	}
	return s + strings.Repeat(" ", width-runeCount)
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

// formatDistance formats a distance value for display
func formatDistance(d *float64) string {
	if d == nil {
		return ""
	}
	return distance.FormatAway(*d)
}

func formatImages(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d image%s", n, plural(n))
}

func formatOwner(o vehicle.Owner, isOwner bool) string {
	name := o.Name
	if name == "" {
		name = "Unknown"
	}
	if isOwner {
		return name + " (owner)"
	}
	return name + " (agent)"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

func formatDateTime(t time.Time) string {
	return t.Format("January 2, 2006 at 03:04 PM")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func describeState(s listing.FilterState) string {
	var parts []string
	if s.Search != "" {
		parts = append(parts, fmt.Sprintf("search %q", s.Search))
	}
	parts = append(parts, "distance "+s.Distance.String())
	return strings.Join(parts, ", ")
}
