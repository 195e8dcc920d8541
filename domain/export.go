package domain

import (
	"fmt"
	"strings"
)

// exportHeader is the fixed CSV header row. The spacing is part of the
// published artifact format and must not change.
const exportHeader = "Tarea, Responsable, Fecha Creación, Fecha Cierre, Horas Registradas"

// ExportCompleted serializes the done column into the downloadable CSV
// artifact: the fixed header, one quoted row per task with its normalized
// logged duration, and a single-cell summary row totalling every exported
// row. An empty input yields ErrNothingToExport and no artifact.
func ExportCompleted(done []Task, today Date) (filename string, data []byte, err error) {
	if len(done) == 0 {
		return "", nil, ErrNothingToExport
	}

	var sb strings.Builder
	sb.WriteString(exportHeader)

	sumHours, sumMinutes := 0, 0
	for _, t := range done {
		hours, minutes := TaskTotalDuration(t)
		sumHours += hours
		sumMinutes += minutes
		sb.WriteByte('\n')
		writeRow(&sb, []string{
			t.Title,
			t.Responsible,
			t.CreationDate.String(),
			t.CompletedDate.String(),
			fmt.Sprintf("%dh %dm", hours, minutes),
		})
	}
	sumHours += sumMinutes / 60
	sumMinutes %= 60

	sb.WriteByte('\n')
	writeRow(&sb, []string{fmt.Sprintf("Horas totales: %dh %dm", sumHours, sumMinutes)})

	filename = fmt.Sprintf("tareas_completadas_%s.csv", today.String())
	return filename, []byte(sb.String()), nil
}

func writeRow(sb *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(f, `"`, `""`))
		sb.WriteByte('"')
	}
}
