package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-cda-server/internal/errors"
	"github.com/jrsteele09/go-cda-server/media"
	"github.com/jrsteele09/go-cda-server/plates"
	"github.com/jrsteele09/go-cda-server/reports"
)

// Plate and photo messages
const (
	MsgPlateDuplicate   = "Ya existe Placa con este Número de placa."
	MsgPlateCreated     = "Placa creada correctamente."
	MsgPlateDeleted     = "Placa eliminada correctamente."
	MsgPlateNotFound    = "La placa solicitada no existe."
	MsgPhotoSaved       = "✅ Foto guardada correctamente!"
	MsgPhotoMissing     = "Debe seleccionar una imagen o tomar una foto."
	MsgCameraComment    = "Foto tomada con cámara"
	MsgRendererMissing  = "Error: wkhtmltopdf no está instalado correctamente."
	MsgPlateNumberLimit = "Asegúrese de que este valor tenga menos de 20 caracteres."
)

const (
	fieldPlateNumber = "numero_placa"
	fieldImage       = "imagen"
	fieldComment     = "comentario"
	fieldPhotoData   = "photo_data"
)

// PlateListHandler lists every plate, newest first
func (s *Server) PlateListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.plates.ListPlates()
		if err != nil {
			log.Err(err).Msg("failed to list plates")
			s.renderError(w, r, http.StatusInternalServerError, "No fue posible cargar las placas.")
			return
		}
		s.render(w, r, http.StatusOK, "lista_placas.html", PageData{"Plates": list})
	}
}

// PlateCreatePageHandler shows the new plate form
func (s *Server) PlateCreatePageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "crear_placa.html", PageData{"Number": ""})
	}
}

// PlateCreateHandler registers a plate and continues to its photos page
func (s *Server) PlateCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		number := r.FormValue(fieldPlateNumber)
		user := currentUser(r)

		plate, err := plates.NewPlate(number, user.ID, s.nowTime())
		if err == nil {
			err = s.plates.CreatePlate(plate)
		}
		if err != nil {
			var msg string
			switch {
			case errors.Is(err, apperrors.ErrDuplicate):
				msg = MsgPlateDuplicate
			case errors.Is(err, apperrors.ErrInvalidInput) && plates.NormalizeNumber(number) != "":
				msg = MsgPlateNumberLimit
			case errors.Is(err, apperrors.ErrInvalidInput):
				msg = "Este campo es obligatorio."
			default:
				log.Err(err).Msg("failed to create plate")
				s.renderError(w, r, http.StatusInternalServerError, "No fue posible crear la placa.")
				return
			}
			s.render(w, r, http.StatusOK, "crear_placa.html", PageData{
				"Number": number,
				"Errors": map[string][]string{fieldPlateNumber: {msg}},
			})
			return
		}

		log.Info().Str("plate", plate.Number).Str("user", user.Username).Msg("plate created")
		redirectSuccess(w, r, RoutePlates, flashSuccess(MsgPlateCreated))
	}
}

// PhotosPageHandler shows the plate's photos and the upload form
func (s *Server) PhotosPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate, photos, ok := s.loadPlate(w, r)
		if !ok {
			return
		}
		s.render(w, r, http.StatusOK, "agregar_fotos.html", PageData{
			"Plate":  plate,
			"Photos": photos,
		})
	}
}

// PhotoUploadHandler stores a file upload or a camera capture for the plate
func (s *Server) PhotoUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate, err := s.plates.GetPlate(r.PathValue("id"))
		if err != nil {
			s.plateError(w, r, err)
			return
		}
		back := withID(RoutePlatePhotos, plate.ID)

		r.Body = http.MaxBytesReader(w, r.Body, media.MaxPhotoSize*2)
		if err := r.ParseMultipartForm(media.MaxPhotoSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			redirectWithError(w, r, back, "❌ Error: "+err.Error())
			return
		}

		rel, comment, source, err := s.savePhoto(r, plate.ID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrInvalidInput) {
				log.Err(err).Str("plate", plate.Number).Msg("failed to store photo")
			}
			redirectWithError(w, r, back, "❌ Error: "+err.Error())
			return
		}

		user := currentUser(r)
		photo := plates.NewPhoto(plate.ID, rel, comment, user.ID, s.nowTime())
		if err := s.plates.AddPhoto(photo); err != nil {
			log.Err(err).Str("plate", plate.Number).Msg("failed to record photo")
			if rmErr := s.media.Remove(rel); rmErr != nil {
				log.Err(rmErr).Str("path", rel).Msg("failed to remove orphaned photo")
			}
			redirectWithError(w, r, back, "❌ Error: "+err.Error())
			return
		}

		if s.metrics != nil {
			s.metrics.PhotosUploadedTotal.WithLabelValues(source).Inc()
		}
		redirectSuccess(w, r, back, flashSuccess(MsgPhotoSaved))
	}
}

// savePhoto stores the submitted image and returns its media path, comment and source
func (s *Server) savePhoto(r *http.Request, plateID string) (string, string, string, error) {
	if data := r.FormValue(fieldPhotoData); data != "" {
		comment := MsgCameraComment
		if _, present := r.Form[fieldComment]; present {
			comment = r.FormValue(fieldComment)
		}
		rel, err := s.media.SaveCameraCapture(plateID, data)
		return rel, comment, "camera", err
	}

	file, header, err := r.FormFile(fieldImage)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", "", "", errors.New(MsgPhotoMissing)
		}
		return "", "", "", err
	}
	defer file.Close()

	rel, err := s.media.SaveUpload(header.Filename, file)
	return rel, r.FormValue(fieldComment), "upload", err
}

// PlatePDFHandler renders the plate report as a PDF download
func (s *Server) PlatePDFHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate, photos, ok := s.loadPlate(w, r)
		if !ok {
			return
		}
		back := withID(RoutePlatePhotos, plate.ID)

		pdf, err := s.reports.PlateReport(r.Context(), plate, photos)
		if err != nil {
			s.countReport(reports.KindPlate, "error")
			var missing *reports.MissingImageError
			switch {
			case errors.As(err, &missing):
				redirectWithError(w, r, back, fmt.Sprintf("Error: La imagen %s no existe en el servidor.", missing.ImagePath))
			case errors.Is(err, reports.ErrRendererMissing):
				redirectWithError(w, r, back, MsgRendererMissing)
			default:
				log.Err(err).Str("plate", plate.Number).Msg("failed to render plate report")
				redirectWithError(w, r, back, "Error al generar PDF. Contacte al administrador. Detalle: "+err.Error())
			}
			return
		}

		s.countReport(reports.KindPlate, "success")
		writePDF(w, reports.PlateReportFilename(plate.Number), pdf)
	}
}

// GeneralReportHandler renders the summary report for the current user
func (s *Server) GeneralReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.plates.Counts()
		if err == nil {
			var pdf []byte
			pdf, err = s.reports.GeneralReport(r.Context(), currentUser(r), counts)
			if err == nil {
				s.countReport(reports.KindGeneral, "success")
				writePDF(w, reports.GeneralReportFilename, pdf)
				return
			}
		}

		s.countReport(reports.KindGeneral, "error")
		log.Err(err).Msg("failed to render general report")
		redirectWithError(w, r, RouteHome, "Error al generar PDF: "+err.Error())
	}
}

// PlateDeletePageHandler asks for confirmation before deleting a plate
func (s *Server) PlateDeletePageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate, photos, ok := s.loadPlate(w, r)
		if !ok {
			return
		}
		s.render(w, r, http.StatusOK, "confirmar_eliminacion.html", PageData{
			"Plate":  plate,
			"Photos": photos,
		})
	}
}

// PlateDeleteHandler deletes a plate, its photo records and their files
func (s *Server) PlateDeleteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := s.plates.DeletePlate(r.PathValue("id"))
		if err != nil {
			s.plateError(w, r, err)
			return
		}
		for _, photo := range removed {
			if err := s.media.Remove(photo.ImagePath); err != nil {
				log.Err(err).Str("path", photo.ImagePath).Msg("failed to remove photo file")
			}
		}
		redirectSuccess(w, r, RoutePlates, flashSuccess(MsgPlateDeleted))
	}
}

// MediaHandler serves stored photos to authenticated users
func (s *Server) MediaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := r.PathValue("path")
		if !s.media.Exists(rel) {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		full, err := s.media.Path(rel)
		if err != nil {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		data, err := os.ReadFile(full)
		if err != nil {
			logError(r.Method, r.URL.Path, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=300")
		writeTyped(w, full, data)
	}
}

// loadPlate fetches the {id} plate and its photos, answering the request itself on failure
func (s *Server) loadPlate(w http.ResponseWriter, r *http.Request) (*plates.Plate, []*plates.Photo, bool) {
	plate, err := s.plates.GetPlate(r.PathValue("id"))
	if err != nil {
		s.plateError(w, r, err)
		return nil, nil, false
	}
	photos, err := s.plates.ListPhotos(plate.ID)
	if err != nil {
		s.plateError(w, r, err)
		return nil, nil, false
	}
	return plate, photos, true
}

func (s *Server) plateError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperrors.ErrPlateNotFound) {
		s.renderError(w, r, http.StatusNotFound, MsgPlateNotFound)
		return
	}
	log.Err(err).Str("path", r.URL.Path).Msg("plate lookup failed")
	s.renderError(w, r, http.StatusInternalServerError, "No fue posible cargar la placa.")
}

func (s *Server) countReport(kind, status string) {
	if s.metrics != nil {
		s.metrics.ReportsRendered.WithLabelValues(kind, status).Inc()
	}
}

func writePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", fmt.Sprint(len(pdf)))
	_, _ = w.Write(pdf)
}
