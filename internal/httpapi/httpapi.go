// Package httpapi serves accessory characteristics over HTTP.
//
// Values travel as {"value": n}. Reads of a single characteristic return that
// object, writes accept it and reply 204 once the value is accepted.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/jkaflik/shuttersim/internal/accessory"
	"github.com/jkaflik/shuttersim/internal/shutter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ValueT is the characteristic payload
type ValueT struct {
	Value *int `json:"value"`
}

// AccessoryT describes one accessory and its readable characteristics
type AccessoryT struct {
	accessory.Info
	Characteristics map[string]int `json:"characteristics"`
}

// NewRouter binds the accessory routes of the registry
func NewRouter(reg *accessory.Registry) chi.Router {
	r := chi.NewRouter()
	r.Get("/accessories", ListAccessories(reg))
	r.Route("/accessories/{name}", func(r chi.Router) {
		r.Get("/", GetAccessory(reg))
		r.Get("/characteristics", GetCharacteristics(reg))
		r.Get("/characteristics/{characteristic}", GetCharacteristic(reg))
		r.Put("/characteristics/{characteristic}", SetCharacteristic(reg))
		r.Post("/identify", Identify(reg))
	})
	return r
}

func encodeAndRespond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("http: response encode failed: %s", err)
	}
}

// respondError maps accessory errors to status codes
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, accessory.ErrNotFound), errors.Is(err, shutter.ErrUnknownCharacteristic):
		status = http.StatusNotFound
	case errors.Is(err, accessory.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, accessory.ErrNotReadable), errors.Is(err, accessory.ErrNotWritable):
		status = http.StatusMethodNotAllowed
	}
	http.Error(w, err.Error(), status)
}

func describe(a *accessory.Accessory) AccessoryT {
	return AccessoryT{Info: a.Info(), Characteristics: a.Values()}
}

// ListAccessories returns every registered accessory in registration order
func ListAccessories(reg *accessory.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := reg.All()
		out := make([]AccessoryT, 0, len(all))
		for _, a := range all {
			out = append(out, describe(a))
		}
		encodeAndRespond(w, out)
	}
}

// GetAccessory returns the info and characteristics of one accessory
func GetAccessory(reg *accessory.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := reg.Get(chi.URLParam(r, "name"))
		if err != nil {
			respondError(w, err)
			return
		}
		encodeAndRespond(w, describe(a))
	}
}

// GetCharacteristics returns all readable characteristic values keyed by name
func GetCharacteristics(reg *accessory.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := reg.Get(chi.URLParam(r, "name"))
		if err != nil {
			respondError(w, err)
			return
		}
		encodeAndRespond(w, a.Values())
	}
}

func lookup(reg *accessory.Registry, r *http.Request) (*accessory.Accessory, shutter.Characteristic, error) {
	a, err := reg.Get(chi.URLParam(r, "name"))
	if err != nil {
		return nil, 0, err
	}
	c, err := shutter.ParseCharacteristic(chi.URLParam(r, "characteristic"))
	if err != nil {
		return nil, 0, err
	}
	return a, c, nil
}

// GetCharacteristic returns {"value": n} for a readable characteristic
func GetCharacteristic(reg *accessory.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, c, err := lookup(reg, r)
		if err != nil {
			respondError(w, err)
			return
		}
		v, err := a.Get(c)
		if err != nil {
			respondError(w, err)
			return
		}
		encodeAndRespond(w, ValueT{Value: &v})
	}
}

// SetCharacteristic parses {"value": n} and writes it to the characteristic
func SetCharacteristic(reg *accessory.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, c, err := lookup(reg, r)
		if err != nil {
			respondError(w, err)
			return
		}
		v := ValueT{}
		err = json.NewDecoder(r.Body).Decode(&v)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if v.Value == nil {
			http.Error(w, "missing value", http.StatusBadRequest)
			return
		}
		if err := a.Set(c, *v.Value); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Identify triggers the identify routine of an accessory
func Identify(reg *accessory.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := reg.Get(chi.URLParam(r, "name"))
		if err != nil {
			respondError(w, err)
			return
		}
		a.Identify()
		w.WriteHeader(http.StatusNoContent)
	}
}
