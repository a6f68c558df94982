package repository

import (
	"reflect"
	"strings"
	"testing"
)

// valuesRow is a pgx.Row that copies fixed values into the scan targets.
type valuesRow []any

func (r valuesRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r[i]))
	}
	return nil
}

func customerRow(id int64, schedule string) valuesRow {
	return valuesRow{
		id, int64(1), "Cara", "", "",
		"1 High St", "LS1 4AB",
		false, true, (*int64)(nil),
		[]byte(schedule),
	}
}

func TestScanCustomer_Schedule(t *testing.T) {
	c, err := scanCustomer(customerRow(7,
		`{"monday":{"destination":"Oak Day Centre","morningTime":"","afternoonTime":"15:00","fare":"12.50"}}`))
	if err != nil {
		t.Fatalf("scanCustomer: %v", err)
	}
	if c.ScheduleErr != nil {
		t.Fatalf("ScheduleErr = %v", c.ScheduleErr)
	}
	mon := c.Schedule.Monday
	if mon == nil || mon.MorningTime != nil || mon.AfternoonTime == nil || mon.Fare != 12.5 {
		t.Errorf("monday = %+v", mon)
	}
}

func TestScanCustomer_InvalidScheduleKeepsRow(t *testing.T) {
	c, err := scanCustomer(customerRow(7, `{"monday":{"destination":"Oak","morningTime":"25:00"}}`))
	if err != nil {
		t.Fatalf("scanCustomer: %v", err)
	}
	if c.ID != 7 || c.Name != "Cara" {
		t.Errorf("customer = %+v", c)
	}
	if c.ScheduleErr == nil || !strings.Contains(c.ScheduleErr.Error(), "customer 7") {
		t.Errorf("ScheduleErr = %v, want error naming customer 7", c.ScheduleErr)
	}
	if !c.Schedule.IsEmpty() {
		t.Errorf("schedule = %+v, want empty", c.Schedule)
	}
}
