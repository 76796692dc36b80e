package router

import (
	"net/http"
	"time"

	"github.com/emberhold-oss/keep/internal/announcements"
	"github.com/emberhold-oss/keep/internal/auth"
	"github.com/emberhold-oss/keep/internal/mail"
	"github.com/emberhold-oss/keep/internal/members"
	"github.com/emberhold-oss/keep/internal/parties"
	"github.com/emberhold-oss/keep/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"
)

func Setup(db *bun.DB, jwtSecret []byte, tokenTTL time.Duration) *gin.Engine {
	r := gin.Default()

	mailer := mail.NewMailer(db)
	engine := workflow.NewService(db, mailer)

	authHandler := auth.NewHandler(db, engine, jwtSecret, tokenTTL)
	partyHandler := parties.NewHandler(db, engine)
	memberHandler := members.NewHandler(db, engine)
	mailHandler := mail.NewHandler(db, mailer)
	annHandler := announcements.NewHandler(db)

	authed := auth.Middleware(jwtSecret)
	leadership := auth.RequireLeadership()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "keep"})
	})

	a := r.Group("/auth")
	{
		a.POST("/register", authHandler.Register)
		a.POST("/login", authHandler.Login)
		a.POST("/forgot", authHandler.Forgot)
		a.POST("/reset", authHandler.Reset)

		session := a.Group("", authed)
		{
			session.GET("/me", authHandler.Me)
			session.POST("/logout", authHandler.Logout)
			session.PATCH("/profile", authHandler.UpdateProfile)
		}
	}

	ann := r.Group("/announcements")
	{
		ann.GET("", annHandler.List)
		ann.POST("", authed, leadership, annHandler.Create)
		ann.DELETE("/:id", authed, leadership, annHandler.Delete)
	}

	p := r.Group("/parties", authed)
	{
		p.GET("", partyHandler.ListParties)
		p.GET("/me", partyHandler.MyParty)

		p.POST("/requests", partyHandler.SubmitCreationRequest)
		p.GET("/requests/me", partyHandler.MyCreationRequest)

		p.POST("/:id/join-requests", partyHandler.SubmitJoinRequest)
		p.GET("/join-requests/me", partyHandler.MyJoinRequest)

		// Captain endpoints; captaincy is verified per request.
		p.GET("/join-requests", partyHandler.ListJoinRequests)
		p.POST("/join-requests/:id/approve", partyHandler.ApproveJoinRequest)
		p.POST("/join-requests/:id/reject", partyHandler.RejectJoinRequest)

		admin := p.Group("", leadership)
		{
			admin.GET("/requests", partyHandler.ListCreationRequests)
			admin.POST("/requests/:id/approve", partyHandler.ApproveCreationRequest)
			admin.POST("/requests/:id/reject", partyHandler.RejectCreationRequest)
			admin.DELETE("/:id", partyHandler.Disband)
		}
	}

	m := r.Group("/members", authed)
	{
		m.GET("", memberHandler.List)
		m.POST("/rank-requests", memberHandler.SubmitRankRequest)
		m.GET("/rank-requests/me", memberHandler.MyRankRequest)

		admin := m.Group("", leadership)
		{
			admin.GET("/rank-requests", memberHandler.ListRankRequests)
			admin.POST("/rank-requests/:id/approve", memberHandler.ApproveRankRequest)
			admin.POST("/rank-requests/:id/reject", memberHandler.RejectRankRequest)
		}
	}

	mb := r.Group("/mail", authed)
	{
		mb.GET("/unread-count", mailHandler.UnreadCount)
		mb.GET("/inbox", mailHandler.Inbox)
		mb.GET("/sent", mailHandler.Sent)
		mb.POST("/:id/read", mailHandler.MarkRead)
		mb.POST("/send", mailHandler.Send)
	}

	return r
}
