// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package r3status

// Condition is one entry of a mask table: the bit pattern, a stable ASCII name
// and the description shown to the operator.
type Condition struct {
	Mask        uint16 `json:"mask" yaml:"mask"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// MaskTable is an ordered list of conditions for one device class. Masks may
// overlap; a zero mask documents the idle state and never matches a value.
type MaskTable []Condition

// SentinelCondition is the only condition reported for SentinelValue.
var SentinelCondition = Condition{
	Mask:        SentinelValue,
	Name:        "no_link",
	Description: "Неизвестно или нет связи с прибором",
}

var deviceMasks = MaskTable{
	{0x0000, "normal", "Норма, отсутствие неисправностей"},
	{0x0001, "fault", "Неисправность"},
	{0x0002, "fire_attention", "Пожар/Внимание"},
	{0x0004, "alarm", "Тревога"},
	{0x0008, "disabled", "Отключен"},
	{0x0010, "automation_off", "Автоматика откл"},
	{0x0020, "extinguishing_start", "Запуск СПТ"},
	{0x0040, "tamper", "Вскрытие"},
	{0x0080, "power_fault", "Неисправность питания"},
	{0x0200, "armed", "На охране"},
	{0x0400, "loop_break", "Обрыв АЛС"},
	{0x0800, "loop_short", "Короткое замыкание АЛС"},
}

var actuatorMasks = MaskTable{
	{0x0000, "off", "Выключено, отсутствие неисправностей"},
	{0x0001, "on", "Включено"},
	{0x0002, "automation_on", "Автоматика вкл"},
	{0x0004, "fault", "Неисправность"},
	{0x0010, "link_lost", "Потеря связи"},
	{0x0020, "no_mains", "Отсутствие 220В"},
	{0x0040, "no_battery", "Отсутствие АКБ"},
	{0x0200, "damper_closed", "Заслонка ЗАКРЫТА"},
	{0x0400, "damper_open", "Заслонка ОТКРЫТА"},
	{0x0800, "damper_closing", "Заслонка закрывается"},
	{0x1000, "damper_opening", "Заслонка открывается"},
}

var securityZoneMasks = MaskTable{
	{0x0000, "disarmed", "Не на охране"},
	{0x0001, "alarm", "Тревога"},
	{0x0002, "entry_exit_delay", "Задержка по входу/выходу"},
	{0x0004, "arming_failed", "Неудачная постановка на охрану"},
	{0x0020, "armed", "На охране"},
}

var fireZoneMasks = MaskTable{
	{0x0000, "normal", "Норма, отсутствие неисправностей"},
	{0x0001, "attention", "Внимание"},
	{0x0002, "fault", "Неисправность"},
	{0x0008, "bypass", "Отключено («Обход»)"},
	{0x0080, "fire", "Пожар"},
}

func tableFor(c DeviceClass) MaskTable {
	switch c {
	case Device:
		return deviceMasks
	case Actuator:
		return actuatorMasks
	case SecurityZone:
		return securityZoneMasks
	case FireZone:
		return fireZoneMasks
	default:
		return nil
	}
}

// TableFor returns a copy of the mask table of class c. Unclassified has an
// empty table.
func TableFor(c DeviceClass) MaskTable {
	t := tableFor(c)
	if t == nil {
		return nil
	}
	out := make(MaskTable, len(t))
	copy(out, t)
	return out
}

// Lookup returns the condition of class c with the given mask.
func Lookup(c DeviceClass, mask uint16) (Condition, bool) {
	for _, cond := range tableFor(c) {
		if cond.Mask == mask {
			return cond, true
		}
	}
	return Condition{}, false
}

// descriptionCodes indexes every description to the code of the last table
// that defines it, walking classes in checklist order. Descriptions shared
// between classes resolve to the later class.
func descriptionCodes() map[string]string {
	codes := make(map[string]string)
	for _, c := range Classes {
		for _, cond := range tableFor(c) {
			codes[cond.Description] = FormatCode(cond.Mask)
		}
	}
	return codes
}
