package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"BreakoutScreener/internal/export"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/scanner"
	"BreakoutScreener/internal/session"
)

const sessionKey = "session"

func (s *Server) loadSession(c *gin.Context) {
	sess, err := s.cfg.Sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (s *Server) createSession(c *gin.Context) {
	sess := s.cfg.Sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID})
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.cfg.Sessions.Close(current(c).ID); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type scanBody struct {
	Universe string `json:"universe" binding:"required"`
	Start    string `json:"start"`
	End      string `json:"end"`
	RankBy   string `json:"rank_by"`
}

func (s *Server) startScan(c *gin.Context) {
	var body scanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, err := s.dateRange(body.Start, body.End)
	if err != nil {
		abortWithError(c, err)
		return
	}

	sess := current(c)
	id, err := sess.StartScan(scanner.Request{
		Universe: body.Universe,
		Start:    start,
		End:      end,
		RankBy:   strings.ToLower(body.RankBy),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session_id": sess.ID, "scan_id": id})
}

func (s *Server) currentScan(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Snapshot())
}

func (s *Server) resetScan(c *gin.Context) {
	current(c).Reset()
	c.Status(http.StatusNoContent)
}

type columnJSON struct {
	Name   string     `json:"name"`
	Values []*float64 `json:"values"`
}

type frameJSON struct {
	Symbol  string       `json:"symbol"`
	Dates   []string     `json:"dates"`
	Open    []float64    `json:"open"`
	High    []float64    `json:"high"`
	Low     []float64    `json:"low"`
	Close   []float64    `json:"close"`
	Volume  []float64    `json:"volume"`
	Columns []columnJSON `json:"columns"`
}

func toFrameJSON(f *model.IndicatorFrame) frameJSON {
	n := f.Len()
	out := frameJSON{
		Symbol: f.Symbol,
		Dates:  make([]string, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, b := range f.Bars {
		out.Dates[i] = b.Time.Format(model.DateLayout)
		out.Open[i], out.High[i], out.Low[i], out.Close[i], out.Volume[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}
	for _, name := range f.Columns() {
		col, _ := f.Column(name)
		out.Columns = append(out.Columns, columnJSON{Name: name, Values: col.Nullable()})
	}
	return out
}

func (s *Server) frame(c *gin.Context) (*model.IndicatorFrame, bool) {
	settings, err := s.settingsFromQuery(c)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	start, end, err := s.dateRange(c.Query("start"), c.Query("end"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	f, err := current(c).Frame(c.Request.Context(), symbol, start, end, settings)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return f, true
}

func (s *Server) indicators(c *gin.Context) {
	f, ok := s.frame(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toFrameJSON(f))
}

func (s *Server) exportCSV(c *gin.Context) {
	f, ok := s.frame(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, f); err != nil {
		abortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName(f.Symbol)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
