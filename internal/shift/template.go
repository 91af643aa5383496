package shift

import (
	"context"
	"errors"

	appErrors "github.com/marvellous-media/marvellous-manager/internal"
)

type builtin struct {
	name      string
	shiftType string
	color     string
}

var builtins = map[string]builtin{
	TemplateKeyDayOff:        {name: "Day Off", shiftType: TypeDayOff, color: "#9CA3AF"},
	TemplateKeyPublicHoliday: {name: "Public Holiday", shiftType: TypePublicHoliday, color: "#F59E0B"},
}

// Materialized describes what a leave-backed shift looks like.
type Materialized struct {
	ShiftType string
	Title     string
	Color     string
}

// ResolveBuiltin looks up a built-in template by key, falling back to code defaults when
// the row is missing.
func ResolveBuiltin(ctx context.Context, repo TemplateRepository, key string) (Materialized, error) {
	def, known := builtins[key]
	if !known {
		def = builtins[TemplateKeyDayOff]
	}
	out := Materialized{ShiftType: def.shiftType, Title: def.name, Color: def.color}

	t, err := repo.GetTemplateByKey(ctx, key)
	if err != nil {
		if errors.Is(err, appErrors.ErrTemplateNotFound) {
			return out, nil
		}
		return Materialized{}, err
	}

	if t.Name != "" {
		out.Title = t.Name
	}
	if t.Color != "" {
		out.Color = t.Color
	}
	return out, nil
}

// BuiltinTemplates are the rows the seeder inserts.
func BuiltinTemplates() []*Template {
	return []*Template{
		{Name: "Day Off", ShiftType: TemplateKeyDayOff, StartTime: "00:00", EndTime: "23:59", Color: "#9CA3AF"},
		{Name: "Public Holiday", ShiftType: TemplateKeyPublicHoliday, StartTime: "00:00", EndTime: "23:59", Color: "#F59E0B"},
		{Name: "Morning", ShiftType: "morning", StartTime: "06:00", EndTime: "14:00", Color: "#3B82F6"},
		{Name: "Evening", ShiftType: "evening", StartTime: "14:00", EndTime: "22:00", Color: "#8B5CF6"},
	}
}
