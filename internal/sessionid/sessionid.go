// Package sessionid genera identificadores de sesión de conversación.
//
// El modo hash reproduce el hash polinómico de multiplicador 31 sobre unidades UTF-16 de la
// semilla. No resiste colisiones: dos semillas que colisionan comparten la misma sesión. El
// modo uuid existe para cuando se necesita unicidad real.
package sessionid

import (
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// SeedLayout es el formato ISO-8601 con milisegundos usado como semilla por defecto.
const SeedLayout = "2006-01-02T15:04:05.000Z07:00"

// Generator produce identificadores de sesión nuevos.
type Generator interface {
	NewID(now time.Time) string
}

// GeneratorFunc adapta una función a Generator.
type GeneratorFunc func(now time.Time) string

func (f GeneratorFunc) NewID(now time.Time) string { return f(now) }

// Hash pliega la semilla en un entero con signo de 32 bits: acc = (acc << 5) - acc + code.
func Hash(seed string) string {
	var acc int32
	for _, code := range utf16.Encode([]rune(seed)) {
		acc = (acc << 5) - acc + int32(code)
	}
	return strconv.FormatInt(int64(acc), 10)
}

// FromTime genera el identificador hash a partir de la marca de tiempo en UTC.
func FromTime(now time.Time) string {
	return Hash(now.UTC().Format(SeedLayout))
}

// NewRandom devuelve un UUID v4; el argumento se ignora.
func NewRandom(time.Time) string {
	return uuid.NewString()
}

// ForMode elige el generador según la configuración ("hash" o "uuid").
func ForMode(mode string) Generator {
	if mode == "uuid" {
		return GeneratorFunc(NewRandom)
	}
	return GeneratorFunc(FromTime)
}
